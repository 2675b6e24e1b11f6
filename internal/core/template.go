package core

import (
	"bytes"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// ExecuteTemplate renders content with data. It is used for toolchain
// command lines and for synthesized interceptor responses.
func ExecuteTemplate(name, content string, data interface{}) (string, error) {
	tmpl, err := parseTemplate(name, content)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// CheckTemplate reports syntax errors without rendering.
func CheckTemplate(name, content string) error {
	_, err := parseTemplate(name, content)
	return err
}

func parseTemplate(name, content string) (*template.Template, error) {
	// missingkey=zero keeps optional fields usable with sprig's 'default'.
	return template.New(name).Funcs(sprig.TxtFuncMap()).Option("missingkey=zero").Parse(content)
}
