package migrations_test

import (
	"os"
	"path"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/kubev2v/document-review/internal/config"
	"github.com/kubev2v/document-review/internal/store"
	"github.com/kubev2v/document-review/pkg/migrations"
)

var _ = Describe("migrations", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
		cfg    *config.Config
	)

	BeforeAll(func() {
		cfg = config.NewDefault()
		db, err := store.InitDB(cfg)
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db
	})

	AfterAll(func() {
		s.Close()
	})

	tableExists := func(name string) bool {
		var count int
		tx := gormdb.Raw("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&count)
		Expect(tx.Error).To(BeNil())
		return count == 1
	}

	Context("store migrations", Ordered, func() {
		It("fails to migrate the db -- migration folder does not exist", func() {
			err := migrations.MigrateStore(gormdb, cfg.Database.Type, "some folder")
			Expect(err).NotTo(BeNil())
		})

		It("fails to migrate the db -- migration folder is a file", func() {
			currentFolder, err := os.Getwd()
			Expect(err).To(BeNil())

			err = migrations.MigrateStore(gormdb, cfg.Database.Type, path.Join(currentFolder, "migrations.go"))
			Expect(err).NotTo(BeNil())
		})

		It("successfully migrates the db from a folder", func() {
			currentFolder, err := os.Getwd()
			Expect(err).To(BeNil())

			err = migrations.MigrateStore(gormdb, cfg.Database.Type, path.Join(currentFolder, "sql"))
			Expect(err).To(BeNil())

			for _, table := range []string{
				"checklist_sets",
				"checklist_items",
				"checklist_documents",
				"tool_configurations",
				"user_preferences",
				"review_jobs",
				"review_documents",
				"review_results",
			} {
				Expect(tableExists(table)).To(BeTrue(), table)
			}
		})

		It("is idempotent with the embedded migrations", func() {
			Expect(migrations.MigrateStore(gormdb, cfg.Database.Type, "")).To(Succeed())
			Expect(tableExists("review_results")).To(BeTrue())
		})
	})
})
