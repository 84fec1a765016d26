package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/crewdeck/crewdeck/internal/config"
	"github.com/crewdeck/crewdeck/internal/metrics"
	"github.com/crewdeck/crewdeck/internal/scope"
	"github.com/crewdeck/crewdeck/internal/scoped"
	"github.com/crewdeck/crewdeck/internal/tenant"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a demo organization with sites, users, and assignments",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := tenant.NewStore(pool)

	org, err := store.CreateOrganization(ctx, "Hartmann Bau GmbH")
	if err != nil {
		return fmt.Errorf("creating organization: %w", err)
	}

	// Every organization carries a system fallback site so org-level duties
	// have somewhere to live.
	fallback, err := store.CreateSite(ctx, tenant.CreateSiteInput{
		OrganizationID: org.ID,
		Name:           "Office",
		Status:         tenant.SiteStatusActive,
		IsSystem:       true,
	})
	if err != nil {
		return err
	}

	start := time.Now().UTC().AddDate(0, -1, 0)
	end := time.Now().UTC().AddDate(0, 6, 0)

	north, err := store.CreateSite(ctx, tenant.CreateSiteInput{
		OrganizationID: org.ID,
		Name:           "Nordhafen Tower",
		Status:         tenant.SiteStatusActive,
		StartDate:      &start,
		EndDate:        &end,
	})
	if err != nil {
		return err
	}

	south, err := store.CreateSite(ctx, tenant.CreateSiteInput{
		OrganizationID: org.ID,
		Name:           "Südkreuz Depot",
		Status:         tenant.SiteStatusActive,
		StartDate:      &start,
	})
	if err != nil {
		return err
	}

	admin, err := store.CreateUser(ctx, tenant.CreateUserInput{
		OrganizationID: org.ID,
		Email:          "admin@example.com",
		Password:       "admin-password",
		Name:           "Alex Admin",
		Admin:          true,
	})
	if err != nil {
		return err
	}

	manager, err := store.CreateUser(ctx, tenant.CreateUserInput{
		OrganizationID: org.ID,
		Email:          "manager@example.com",
		Password:       "manager-password",
		Name:           "Maria Manager",
	})
	if err != nil {
		return err
	}

	worker, err := store.CreateUser(ctx, tenant.CreateUserInput{
		OrganizationID: org.ID,
		Email:          "worker@example.com",
		Password:       "worker-password",
		Name:           "Willi Worker",
	})
	if err != nil {
		return err
	}

	assignments := []tenant.CreateAssignmentInput{
		{UserID: manager.ID, SiteID: north.ID, Role: tenant.RoleSiteManager, StartDate: start},
		{UserID: manager.ID, SiteID: south.ID, Role: tenant.RoleCrewLead, StartDate: start},
		{UserID: worker.ID, SiteID: north.ID, Role: tenant.RoleFieldWorker, StartDate: start},
	}
	for _, in := range assignments {
		if _, err := store.CreateAssignment(ctx, in); err != nil {
			return err
		}
	}

	// Scoped rows go through the guarded stores with an admin principal.
	adminCtx := scope.ContextWithPrincipal(ctx, &scope.Principal{
		ID:             admin.ID,
		OrganizationID: org.ID,
		Admin:          true,
		Name:           admin.Name,
	})

	m := metrics.New()
	crewStore := scoped.NewCrewStore(pool, m)
	taskStore := scoped.NewTaskStore(pool, m)

	crew := []scoped.CreateCrewMemberInput{
		{Name: "Jonas Becker", Trade: "electrician", Phone: "+49 30 1111111"},
		{Name: "Tomasz Nowak", Trade: "carpenter"},
	}
	for _, in := range crew {
		if _, err := crewStore.Create(adminCtx, north.ID, in); err != nil {
			return err
		}
	}

	due := time.Now().UTC().AddDate(0, 0, 14)
	if _, err := taskStore.Create(adminCtx, &north.ID, scoped.CreateTaskInput{
		Title:   "Pour foundation, section B",
		Status:  scoped.TaskStatusPlanned,
		DueDate: &due,
	}); err != nil {
		return err
	}
	if _, err := taskStore.Create(adminCtx, nil, scoped.CreateTaskInput{
		Title:  "Company safety briefing",
		Status: scoped.TaskStatusPlanned,
	}); err != nil {
		return err
	}

	slog.Info("seeded demo organization",
		"organization_id", org.ID,
		"fallback_site_id", fallback.ID,
		"admin_email", admin.Email,
	)
	fmt.Println("Demo logins:")
	fmt.Println("  admin@example.com   / admin-password")
	fmt.Println("  manager@example.com / manager-password")
	fmt.Println("  worker@example.com  / worker-password")
	return nil
}
