package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/frahmantamala/project-access/internal/auth"
	"github.com/frahmantamala/project-access/internal/core/common/validation"
	directory "github.com/frahmantamala/project-access/internal/core/datamodel/directory"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	seedAdminEmail    string
	seedAdminPassword string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the administrative permissions, role and user",
	Long:  `Create the admin permissions, bind them to the admin role and create the first administrator. Safe to run repeatedly.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		gormDB, err := initGorm(db.DB)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		hash, err := auth.HashPassword(seedAdminPassword, cfg.Security.BCryptCost)
		if err != nil {
			log.Fatalf("failed to hash password: %v", err)
		}

		if err := seedAdmin(cmd.Context(), gormDB, validation.NormalizeEmail(seedAdminEmail), hash); err != nil {
			log.Fatalf("seed failed: %v", err)
		}
		fmt.Println("Seeded admin role and user:", seedAdminEmail)
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedAdminEmail, "admin-email", "admin@example.com", "email of the administrator to create")
	seedCmd.Flags().StringVar(&seedAdminPassword, "admin-password", "ChangeMe123", "initial administrator password")
}

// seedAdmin is idempotent: existing rows are left untouched.
func seedAdmin(ctx context.Context, db *gorm.DB, email, passwordHash string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		role := directory.Role{Code: "admin", DisplayName: "Administrator"}
		if err := tx.Where(directory.Role{Code: role.Code}).FirstOrCreate(&role).Error; err != nil {
			return fmt.Errorf("admin role: %w", err)
		}

		for _, code := range auth.AdminPermissions {
			perm := directory.Permission{Code: code, Description: "administrative permission"}
			if err := tx.Where(directory.Permission{Code: code}).FirstOrCreate(&perm).Error; err != nil {
				return fmt.Errorf("permission %s: %w", code, err)
			}
			binding := directory.RolePermission{RoleID: role.ID, PermissionID: perm.ID}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&binding).Error; err != nil {
				return fmt.Errorf("binding %s: %w", code, err)
			}
		}

		var existing directory.User
		err := tx.Where("LOWER(email) = ?", email).First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		admin := directory.User{
			Username:     "admin",
			Email:        email,
			PasswordHash: passwordHash,
			FirstName:    "System",
			LastName:     "Administrator",
			RoleID:       &role.ID,
			IsActive:     true,
			IsStaff:      true,
			IsSuperuser:  true,
		}
		return tx.Create(&admin).Error
	})
}
