package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"CompetitorReports/internal/app"
	"CompetitorReports/internal/domain"
)

type projectFile struct {
	ID          string           `yaml:"id"`
	Name        string           `yaml:"name"`
	OwnerID     string           `yaml:"ownerId"`
	Products    []productFile    `yaml:"products"`
	Competitors []competitorFile `yaml:"competitors"`
}

type productFile struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Website      string `yaml:"website"`
	Industry     string `yaml:"industry"`
	Description  string `yaml:"description"`
	Positioning  string `yaml:"positioning"`
	CustomerData string `yaml:"customerData"`
	UserProblem  string `yaml:"userProblem"`
}

type competitorFile struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Website     string `yaml:"website"`
	Industry    string `yaml:"industry"`
	Description string `yaml:"description"`
}

// parseProject decodes a project definition and assigns missing IDs.
func parseProject(raw []byte, now time.Time) (domain.Project, error) {
	var f projectFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return domain.Project{}, fmt.Errorf("decode project: %w", err)
	}
	if strings.TrimSpace(f.Name) == "" {
		return domain.Project{}, fmt.Errorf("project name is required")
	}

	project := domain.Project{
		ID:        orNewID(f.ID),
		Name:      f.Name,
		OwnerID:   f.OwnerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, p := range f.Products {
		if strings.TrimSpace(p.Name) == "" {
			return domain.Project{}, fmt.Errorf("product %d: name is required", i)
		}
		project.Products = append(project.Products, domain.Product{
			ID:           orNewID(p.ID),
			ProjectID:    project.ID,
			Name:         p.Name,
			Website:      p.Website,
			Industry:     p.Industry,
			Description:  p.Description,
			Positioning:  p.Positioning,
			CustomerData: p.CustomerData,
			UserProblem:  p.UserProblem,
		})
	}
	for i, c := range f.Competitors {
		if strings.TrimSpace(c.Name) == "" {
			return domain.Project{}, fmt.Errorf("competitor %d: name is required", i)
		}
		project.Competitors = append(project.Competitors, domain.Competitor{
			ID:          orNewID(c.ID),
			ProjectID:   project.ID,
			Name:        c.Name,
			Website:     c.Website,
			Industry:    c.Industry,
			Description: c.Description,
		})
	}
	return project, nil
}

func orNewID(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return uuid.NewString()
}

func runImport(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read project file: %w", err)
	}
	project, err := parseProject(raw, time.Now().UTC())
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, application *app.Application, logger *slog.Logger) error {
		if err := application.Store().CreateProject(ctx, project); err != nil {
			return fmt.Errorf("create project: %w", err)
		}
		logger.Info("project imported", "project", project.ID, "products", len(project.Products), "competitors", len(project.Competitors))
		return printJSON(cmd, map[string]string{"projectId": project.ID})
	})
}
