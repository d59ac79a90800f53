package main

import (
	"context"

	"github.com/trezcool/fomu/core/section"
)

// addSection creates a passcode-gated study section.
func (cli *commandLine) addSection(number int, title, description, passcode string) error {
	s, err := cli.secSvc.Create(context.Background(), section.NewSection{
		Number:      number,
		Title:       title,
		Description: description,
		Passcode:    passcode,
	})
	if err != nil {
		return err
	}
	logger.Printf("created section %d (%s)", s.Number, s.Title)
	return nil
}
