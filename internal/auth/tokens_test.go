package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/frahmantamala/project-access/internal"
	"github.com/golang-jwt/jwt/v5"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

var _ = ginkgo.Describe("JWTTokenGenerator", func() {
	var (
		clock *fakeClock
		gen   *JWTTokenGenerator
	)

	ginkgo.BeforeEach(func() {
		clock = &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
		gen = NewJWTTokenGenerator(TokenConfig{
			AccessSecret:  testAccessSecret,
			RefreshSecret: testRefreshSecret,
			Issuer:        "issuer",
		}).WithClock(clock.Now)
	})

	mint := func() string {
		token, _, err := gen.GenerateAccessToken(Claims{
			Username:         "alice",
			RegisteredClaims: jwt.RegisteredClaims{Subject: "10"},
		}, false)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		return token
	}

	ginkgo.It("falls back to the default lifetimes", func() {
		gomega.Expect(gen.lifetimes(false)).To(gomega.Equal(DefaultLifetimes))
		gomega.Expect(gen.lifetimes(true)).To(gomega.Equal(RememberLifetimes))
	})

	ginkgo.It("produces a three-part token with a fresh jti each time", func() {
		a, b := mint(), mint()
		gomega.Expect(strings.Count(a, ".")).To(gomega.Equal(2))

		ca, err := gen.ParseAccessToken(a)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		cb, err := gen.ParseAccessToken(b)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(ca.ID).ToNot(gomega.Equal(cb.ID))
		gomega.Expect(ca.Issuer).To(gomega.Equal("issuer"))
		gomega.Expect(ca.Type).To(gomega.Equal(TokenTypeAccess))
	})

	ginkgo.It("reports a bad signature", func() {
		a := strings.Split(mint(), ".")
		b := strings.Split(mint(), ".")
		tampered := a[0] + "." + b[1] + "." + a[2]

		_, err := gen.ParseAccessToken(tampered)
		gomega.Expect(errors.Is(err, internal.ErrSignatureInvalid)).To(gomega.BeTrue())
	})

	ginkgo.It("reports a token signed with another secret", func() {
		other := NewJWTTokenGenerator(TokenConfig{AccessSecret: "another-secret-0123456789abcdefghij", RefreshSecret: testRefreshSecret}).WithClock(clock.Now)
		token, _, err := other.GenerateAccessToken(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "10"}}, false)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		_, err = gen.ParseAccessToken(token)
		gomega.Expect(errors.Is(err, internal.ErrSignatureInvalid)).To(gomega.BeTrue())
	})

	ginkgo.It("refuses unsigned tokens", func() {
		claims := &Claims{Type: TokenTypeAccess, RegisteredClaims: jwt.RegisteredClaims{
			ID: "x", Subject: "10", ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		_, err = gen.ParseAccessToken(token)
		gomega.Expect(errors.Is(err, internal.ErrSignatureInvalid)).To(gomega.BeTrue())
	})

	ginkgo.DescribeTable("reports malformed tokens",
		func(token string) {
			_, err := gen.ParseAccessToken(token)
			gomega.Expect(errors.Is(err, internal.ErrTokenMalformed)).To(gomega.BeTrue())
		},
		ginkgo.Entry("empty", ""),
		ginkgo.Entry("not a jwt", "hello"),
		ginkgo.Entry("bad base64", "a.b.c"),
	)

	ginkgo.It("rejects tokens without jti or exp", func() {
		claims := &Claims{Type: TokenTypeAccess, RegisteredClaims: jwt.RegisteredClaims{Subject: "10"}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testAccessSecret))
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		_, err = gen.ParseAccessToken(token)
		gomega.Expect(errors.Is(err, internal.ErrTokenMalformed)).To(gomega.BeTrue())
	})

	ginkgo.It("rejects a refresh-typed payload under the access secret", func() {
		claims := &RefreshClaims{Type: TokenTypeRefresh, RegisteredClaims: jwt.RegisteredClaims{
			ID: "x", Subject: "10", ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testAccessSecret))
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		_, err = gen.ParseAccessToken(token)
		gomega.Expect(errors.Is(err, internal.ErrTokenMalformed)).To(gomega.BeTrue())
	})

	ginkgo.It("applies the inclusive expiry boundary to refresh tokens", func() {
		token, claims, err := gen.GenerateRefreshToken(10, 3, false)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(claims.Version).To(gomega.Equal(3))

		clock.Set(claims.ExpiresAt.Time.Add(-time.Second))
		_, err = gen.ParseRefreshToken(token)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		clock.Set(claims.ExpiresAt.Time)
		_, err = gen.ParseRefreshToken(token)
		gomega.Expect(errors.Is(err, internal.ErrTokenExpired)).To(gomega.BeTrue())
	})
})

var _ = ginkgo.Describe("PermissionResolver", func() {
	var store *mockUserStore

	ginkgo.BeforeEach(func() {
		store = newMockUserStore()
	})

	ginkgo.It("returns an empty set for users without a role", func() {
		perms, err := NewPermissionResolver(store).Resolve(context.Background(), &directoryUserWithoutRole)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(perms).To(gomega.BeEmpty())
		gomega.Expect(perms).ToNot(gomega.BeNil())
	})

	ginkgo.It("is independent of binding insertion order", func() {
		roleID := int64(4)
		user := directoryUserWithoutRole
		user.RoleID = &roleID
		resolver := NewPermissionResolver(store)

		store.bindings[roleID] = []string{"b:x", "a:y", "c:z", "a:y"}
		first, err := resolver.Resolve(context.Background(), &user)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		store.bindings[roleID] = []string{"c:z", "b:x", "a:y"}
		second, err := resolver.Resolve(context.Background(), &user)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		gomega.Expect(first).To(gomega.Equal([]string{"a:y", "b:x", "c:z"}))
		gomega.Expect(second).To(gomega.Equal(first))
	})
})
