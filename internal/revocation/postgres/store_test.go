package postgres_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/frahmantamala/project-access/internal/revocation"
	"github.com/frahmantamala/project-access/internal/revocation/postgres"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestRevocationPostgres(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Revocation Postgres Suite")
}

var _ = Describe("RevocationStore", func() {
	var (
		mock  sqlmock.Sqlmock
		store *postgres.RevocationStore
		ctx   context.Context
	)

	BeforeEach(func() {
		db, m, err := sqlmock.New()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(db.Close)
		mock = m
		store = postgres.NewRevocationStore(sqlx.NewDb(db, "sqlmock"))
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	It("inserts with conflict-ignore on jti", func() {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO revoked_tokens (user_id, jti, revoked_at, reason, expires_at)") + ".*ON CONFLICT \\(jti\\) DO NOTHING").
			WithArgs(int64(9), "jti-1", sqlmock.AnyArg(), "logout", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		inserted, err := store.Insert(ctx, revocation.Entry{
			JTI: "jti-1", UserID: 9, Reason: "logout",
			RevokedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(inserted).To(BeTrue())
	})

	It("treats a duplicate jti as success without claiming it", func() {
		mock.ExpectExec("INSERT INTO revoked_tokens").
			WithArgs(int64(9), "jti-1", sqlmock.AnyArg(), nil, nil).
			WillReturnResult(sqlmock.NewResult(0, 0))

		inserted, err := store.Insert(ctx, revocation.Entry{JTI: "jti-1", UserID: 9, RevokedAt: time.Now()})
		Expect(err).NotTo(HaveOccurred())
		Expect(inserted).To(BeFalse())
	})

	It("wraps driver errors", func() {
		mock.ExpectExec("INSERT INTO revoked_tokens").WillReturnError(errors.New("conn reset"))

		_, err := store.Insert(ctx, revocation.Entry{JTI: "jti-1", RevokedAt: time.Now()})
		Expect(err).To(MatchError(ContainSubstring("conn reset")))
	})

	It("looks up by jti", func() {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = $1)")).
			WithArgs("jti-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("jti-2").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		ok, err := store.Exists(ctx, "jti-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		ok, err = store.Exists(ctx, "jti-2")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("deletes entries past their expiry", func() {
		cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM revoked_tokens WHERE expires_at IS NOT NULL AND expires_at <= $1")).
			WithArgs(cutoff).
			WillReturnResult(sqlmock.NewResult(0, 4))

		n, err := store.DeleteExpired(ctx, cutoff)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(4)))
	})
})
