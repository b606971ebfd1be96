package cmd

import (
	"context"

	"github.com/frahmantamala/project-access/internal/auth"
	directory "github.com/frahmantamala/project-access/internal/core/datamodel/directory"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var _ = Describe("seedAdmin", func() {
	var db *gorm.DB

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Silent),
			TranslateError: true,
		})
		Expect(err).NotTo(HaveOccurred())
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		sqlDB.SetMaxOpenConns(1)
		DeferCleanup(sqlDB.Close)
		Expect(db.AutoMigrate(directory.Models()...)).To(Succeed())
	})

	It("binds every admin permission to the admin role and creates a superuser", func() {
		Expect(seedAdmin(context.Background(), db, "admin@example.com", "hash")).To(Succeed())

		var role directory.Role
		Expect(db.Where("code = ?", "admin").First(&role).Error).To(Succeed())

		var codes []string
		Expect(db.Table("permissions").
			Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
			Where("role_permissions.role_id = ?", role.ID).
			Order("permissions.code").
			Pluck("permissions.code", &codes).Error).To(Succeed())
		Expect(codes).To(Equal(auth.AdminPermissions))

		var admin directory.User
		Expect(db.Where("email = ?", "admin@example.com").First(&admin).Error).To(Succeed())
		Expect(*admin.RoleID).To(Equal(role.ID))
		Expect(admin.IsSuperuser).To(BeTrue())
		Expect(admin.IsStaff).To(BeTrue())
	})

	It("is safe to run twice", func() {
		Expect(seedAdmin(context.Background(), db, "admin@example.com", "hash")).To(Succeed())
		Expect(seedAdmin(context.Background(), db, "admin@example.com", "other")).To(Succeed())

		var users, bindings int64
		Expect(db.Model(&directory.User{}).Count(&users).Error).To(Succeed())
		Expect(db.Model(&directory.RolePermission{}).Count(&bindings).Error).To(Succeed())
		Expect(users).To(Equal(int64(1)))
		Expect(bindings).To(Equal(int64(len(auth.AdminPermissions))))
	})
})
