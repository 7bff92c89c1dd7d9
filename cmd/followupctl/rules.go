package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"followup_backend/internal/followups/repository"
	"followup_backend/internal/followups/service"
	"followup_backend/internal/followups/transport"
	"followup_backend/platform/validator"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// ruleFile is the YAML document accepted by import-rules.
type ruleFile struct {
	OrganizationID string                  `yaml:"organizationId"`
	Rules          []transport.RuleRequest `yaml:"rules"`
}

// loadRuleFile decodes and validates every rule; nothing is written when any
// rule fails.
func loadRuleFile(r io.Reader, val *validator.Validator) (uuid.UUID, []transport.RuleRequest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file ruleFile
	if err := dec.Decode(&file); err != nil {
		return uuid.Nil, nil, fmt.Errorf("decode rules: %w", err)
	}

	orgID, err := uuid.Parse(strings.TrimSpace(file.OrganizationID))
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("organizationId: %w", err)
	}
	if len(file.Rules) == 0 {
		return uuid.Nil, nil, fmt.Errorf("no rules in file")
	}

	seen := make(map[string]bool, len(file.Rules))
	for i, rule := range file.Rules {
		if err := val.Struct(rule); err != nil {
			return uuid.Nil, nil, fmt.Errorf("rule %d (%s): %w", i, rule.Name, err)
		}
		key := strings.ToLower(strings.TrimSpace(rule.Name))
		if seen[key] {
			return uuid.Nil, nil, fmt.Errorf("rule %d: duplicate name %q", i, rule.Name)
		}
		seen[key] = true
	}
	return orgID, file.Rules, nil
}

func newImportRulesCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "import-rules",
		Short: "Create or update rules from a YAML file, matched by name",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			orgID, rules, err := loadRuleFile(f, validator.New())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			svc := service.New(repository.New(e.pool), nil, nil, nil, nil, e.log)
			existing, err := svc.List(ctx, orgID)
			if err != nil {
				return err
			}
			byName := make(map[string]uuid.UUID, len(existing.Items))
			for _, r := range existing.Items {
				byName[strings.ToLower(r.Name)] = r.ID
			}

			out := cmd.OutOrStdout()
			for _, req := range rules {
				if id, ok := byName[strings.ToLower(strings.TrimSpace(req.Name))]; ok {
					if _, err := svc.Update(ctx, orgID, id, req); err != nil {
						return fmt.Errorf("update %q: %w", req.Name, err)
					}
					fmt.Fprintf(out, "updated %s (%s)\n", req.Name, id)
					continue
				}
				created, err := svc.Create(ctx, orgID, req)
				if err != nil {
					return fmt.Errorf("create %q: %w", req.Name, err)
				}
				fmt.Fprintf(out, "created %s (%s)\n", created.Name, created.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "file", "f", "", "YAML rule file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
