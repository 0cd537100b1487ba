package main

import (
	"fmt"
	"log"
	"reflect"
	"sort"
	"strings"

	"github.com/leapstack-labs/dbal/internal/config"
)

// configField is one leaf key of dbal.yaml.
type configField struct {
	Key     string
	Type    string
	Default string
}

// collectConfigFields walks the koanf tags of t and returns the leaf keys.
func collectConfigFields(t reflect.Type, prefix string) []configField {
	var fields []configField
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := strings.Split(f.Tag.Get("koanf"), ",")[0]
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		if f.Type.Kind() == reflect.Struct {
			fields = append(fields, collectConfigFields(f.Type, key)...)
			continue
		}
		fields = append(fields, configField{Key: key, Type: f.Type.String()})
	}
	return fields
}

func generateConfigDocs(outDir string) error {
	log.Printf("Generating configuration reference to %s", outDir)

	defaults := config.Defaults()
	fields := collectConfigFields(reflect.TypeOf(config.Config{}), "")
	for i := range fields {
		if v, ok := defaults[fields[i].Key]; ok {
			fields[i].Default = fmt.Sprint(v)
		}
	}

	w := NewMarkdownWriter()
	w.Frontmatter("Configuration", "dbal configuration reference")
	w.GeneratedMarker()

	w.Header(1, "Configuration")
	w.Paragraph(fmt.Sprintf("dbal reads %s (or %s) from the project root. The file is searched upward from the working directory.",
		InlineCode(config.ConfigFileName), InlineCode(config.ConfigFileNameAlt)))

	sections := map[string][][]string{}
	for _, f := range fields {
		section, _, found := strings.Cut(f.Key, ".")
		if !found {
			section = "general"
		}
		def := "-"
		if f.Default != "" {
			def = InlineCode(f.Default)
		}
		sections[section] = append(sections[section], []string{InlineCode(f.Key), f.Type, def})
	}
	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		w.Header(2, strings.ToUpper(name[:1])+name[1:])
		w.Table([]string{"Key", "Type", "Default"}, sections[name])
	}

	w.Header(2, "Example")
	w.CodeBlock("yaml", `connection:
  driver: postgres
  host: localhost
  database: app
  user: app
  password: ${APP_DB_PASSWORD}
  table_prefix: wp_
migrations:
  dir: migrations
transaction:
  max_attempts: 5
  retry_delay: 200ms
output: table`)

	return writePage(outDir, "configuration.md", w)
}
