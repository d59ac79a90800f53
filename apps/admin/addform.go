package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/trezcool/fomu/core/form"
)

// addForm creates a form; the schema (fields + optional answer key) is
// read from a JSON file for digital forms.
func (cli *commandLine) addForm(title string, sectionNum int, kind, schemaPath string) error {
	nf := form.NewForm{
		Title:         title,
		SectionNumber: sectionNum,
		Kind:          form.Kind(kind),
	}
	if schemaPath != "" {
		raw, err := os.ReadFile(schemaPath)
		if err != nil {
			return err
		}
		if err = json.Unmarshal(raw, &nf.Schema); err != nil {
			return err
		}
	}

	f, err := cli.formSvc.CreateForm(context.Background(), nf)
	if err != nil {
		return err
	}
	logger.Printf("created %s form %q (%s) in section %d", f.Kind, f.Title, f.ID, f.SectionNumber)
	return nil
}
