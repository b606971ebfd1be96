package auth

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/frahmantamala/project-access/internal"
	directory "github.com/frahmantamala/project-access/internal/core/datamodel/directory"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

var _ = ginkgo.Describe("Password reset", func() {
	var (
		env   *testEnv
		alice *directory.User
		ctx   context.Context
	)

	ginkgo.BeforeEach(func() {
		env = newTestEnv()
		alice = env.seedAlice()
		ctx = context.Background()
	})

	requestToken := func() string {
		gomega.Expect(env.service.RequestPasswordReset(ctx, PasswordResetRequestDTO{Email: "alice@x.com"})).To(gomega.Succeed())
		sent := env.notifier.sent()
		gomega.Expect(sent).To(gomega.HaveLen(1))
		u, err := url.Parse(sent[0].ResetURL)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		return u.Query().Get("token")
	}

	ginkgo.Describe("RequestPasswordReset", func() {
		ginkgo.It("answers identically whether or not the email matches", func() {
			errKnown := env.service.RequestPasswordReset(ctx, PasswordResetRequestDTO{Email: "alice@x.com"})
			errUnknown := env.service.RequestPasswordReset(ctx, PasswordResetRequestDTO{Email: "ghost@x.com"})

			gomega.Expect(errKnown).ToNot(gomega.HaveOccurred())
			gomega.Expect(errUnknown).ToNot(gomega.HaveOccurred())
			gomega.Expect(env.notifier.sent()).To(gomega.HaveLen(1))
		})

		ginkgo.It("sends a reset link bound to the user", func() {
			token := requestToken()

			sent := env.notifier.sent()[0]
			gomega.Expect(sent.User.UserID).To(gomega.Equal(alice.ID))
			gomega.Expect(sent.User.Email).To(gomega.Equal("alice@x.com"))
			gomega.Expect(sent.ResetURL).To(gomega.HavePrefix("https://app.example.com/reset-password?token="))

			uid, ok := ResetTokenUserID(token)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(uid).To(gomega.Equal(alice.ID))
		})

		ginkgo.It("does not notify inactive users", func() {
			env.store.addUser(directory.User{ID: 12, Username: "carol", Email: "carol@x.com"}, "Secret123")

			gomega.Expect(env.service.RequestPasswordReset(ctx, PasswordResetRequestDTO{Email: "carol@x.com"})).To(gomega.Succeed())
			gomega.Expect(env.notifier.sent()).To(gomega.BeEmpty())
		})

		ginkgo.It("swallows notification failures", func() {
			env.notifier.err = errors.New("smtp down")
			gomega.Expect(env.service.RequestPasswordReset(ctx, PasswordResetRequestDTO{Email: "alice@x.com"})).To(gomega.Succeed())
		})

		ginkgo.It("reports store failures", func() {
			env.store.err = errors.New("connection refused")
			err := env.service.RequestPasswordReset(ctx, PasswordResetRequestDTO{Email: "alice@x.com"})

			appErr, ok := internal.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.Type).To(gomega.Equal(internal.ErrorTypeInternal))
		})
	})

	ginkgo.Describe("ConfirmPasswordReset", func() {
		ginkgo.It("sets the new password and invalidates outstanding refresh tokens", func() {
			session := env.login("alice@x.com", "Secret123", false)
			token := requestToken()

			err := env.service.ConfirmPasswordReset(ctx, PasswordResetConfirmDTO{Token: token, NewPassword: "BrandNew99"})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			stored := env.store.get(alice.ID)
			gomega.Expect(VerifyPassword(stored.PasswordHash, "BrandNew99")).To(gomega.Succeed())

			_, err = env.service.Refresh(ctx, RefreshTokenDTO{RefreshToken: session.RefreshToken})
			gomega.Expect(errors.Is(err, internal.ErrTokenRevoked)).To(gomega.BeTrue())
		})

		ginkgo.It("is single use", func() {
			token := requestToken()
			gomega.Expect(env.service.ConfirmPasswordReset(ctx, PasswordResetConfirmDTO{Token: token, NewPassword: "BrandNew99"})).To(gomega.Succeed())

			err := env.service.ConfirmPasswordReset(ctx, PasswordResetConfirmDTO{Token: token, NewPassword: "Another123"})
			gomega.Expect(errors.Is(err, internal.ErrInvalidResetToken)).To(gomega.BeTrue())
		})

		ginkgo.It("expires after the configured lifetime", func() {
			token := requestToken()
			env.clock.Advance(time.Hour)

			err := env.service.ConfirmPasswordReset(ctx, PasswordResetConfirmDTO{Token: token, NewPassword: "BrandNew99"})
			gomega.Expect(errors.Is(err, internal.ErrInvalidResetToken)).To(gomega.BeTrue())
		})

		ginkgo.It("is still valid just before it expires", func() {
			token := requestToken()
			env.clock.Advance(time.Hour - time.Second)

			gomega.Expect(env.service.ConfirmPasswordReset(ctx, PasswordResetConfirmDTO{Token: token, NewPassword: "BrandNew99"})).To(gomega.Succeed())
		})

		ginkgo.It("is invalidated by a later login", func() {
			token := requestToken()
			env.clock.Advance(time.Minute)
			env.login("alice@x.com", "Secret123", false)

			err := env.service.ConfirmPasswordReset(ctx, PasswordResetConfirmDTO{Token: token, NewPassword: "BrandNew99"})
			gomega.Expect(errors.Is(err, internal.ErrInvalidResetToken)).To(gomega.BeTrue())
		})

		ginkgo.DescribeTable("rejects tampered tokens",
			func(mutate func(string) string) {
				token := requestToken()
				err := env.service.ConfirmPasswordReset(ctx, PasswordResetConfirmDTO{Token: mutate(token), NewPassword: "BrandNew99"})
				gomega.Expect(errors.Is(err, internal.ErrInvalidResetToken)).To(gomega.BeTrue())
			},
			ginkgo.Entry("garbage", func(string) string { return "not-a-token" }),
			ginkgo.Entry("flipped signature", func(t string) string { return t[:len(t)-1] + flip(t[len(t)-1]) }),
			ginkgo.Entry("other user id", func(t string) string { return "MTE" + t[len("MTA"):] }),
			ginkgo.Entry("extra segment", func(t string) string { return t + ".x" }),
		)

		ginkgo.It("requires a new password of at least eight characters", func() {
			err := env.service.ConfirmPasswordReset(ctx, PasswordResetConfirmDTO{Token: "x", NewPassword: "short"})

			appErr, ok := internal.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.Fields()).To(gomega.Equal([]string{"new_password"}))
		})
	})
})

func flip(b byte) string {
	if b == '0' {
		return "1"
	}
	return "0"
}
