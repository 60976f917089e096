package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"

	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

// DefaultLanguage is always loaded; other languages override its keys.
const DefaultLanguage = "ru"

// Translator maps message keys to format strings.
type Translator struct {
	translations map[string]string
}

// NewTranslator loads locales/ru.yaml and, when lang differs, overlays locales/{lang}.yaml.
func NewTranslator(fsys fs.FS, lang string) (*Translator, error) {
	base, err := readLocale(fsys, DefaultLanguage)
	if err != nil {
		return nil, err
	}
	if lang != "" && lang != DefaultLanguage {
		overlay, err := readLocale(fsys, lang)
		if err != nil {
			return nil, err
		}
		for k, v := range overlay {
			base[k] = v
		}
	}
	return &Translator{translations: base}, nil
}

func readLocale(fsys fs.FS, lang string) (map[string]string, error) {
	p := path.Join("locales", lang+".yaml")
	data, err := fs.ReadFile(fsys, p)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file %s: %w", p, err)
	}
	return parse(data)
}

func parse(data []byte) (map[string]string, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	if translations == nil {
		translations = map[string]string{}
	}
	return translations, nil
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	tr, err := parse(data)
	if err != nil {
		return nil, err
	}
	return &Translator{translations: tr}, nil
}

// T returns the key itself when it is missing so gaps are visible in chat.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.translations[key]
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}

// Has reports whether the key is translated.
func (t *Translator) Has(key string) bool {
	_, ok := t.translations[key]
	return ok
}
