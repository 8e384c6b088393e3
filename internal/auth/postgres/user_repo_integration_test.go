// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CredKeeper Contributors

//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/credkeeper/credkeeper/internal/auth"
	"github.com/credkeeper/credkeeper/internal/auth/postgres"
	"github.com/credkeeper/credkeeper/internal/store"
)

// setupPostgresContainer starts a PostgreSQL container and applies the
// schema migrations.
func setupPostgresContainer() (*pgxpool.Pool, func(), error) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("credkeeper_test"),
		tcpostgres.WithUsername("credkeeper"),
		tcpostgres.WithPassword("credkeeper"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		return nil, nil, err
	}
	if err := migrator.Up(); err != nil {
		return nil, nil, err
	}
	if err := migrator.Close(); err != nil {
		return nil, nil, err
	}

	pool, err := store.Connect(ctx, connStr)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return pool, cleanup, nil
}

var _ = Describe("UserRepository", func() {
	var (
		pool    *pgxpool.Pool
		repo    *postgres.UserRepository
		cleanup func()
	)

	BeforeEach(func() {
		var err error
		pool, cleanup, err = setupPostgresContainer()
		Expect(err).NotTo(HaveOccurred())
		repo = postgres.NewUserRepository(pool)
	})

	AfterEach(func() {
		cleanup()
	})

	newUser := func(email string) *auth.User {
		user, err := auth.NewUser("tester", email, "$argon2id$hash")
		Expect(err).NotTo(HaveOccurred())
		return user
	}

	Describe("Create", func() {
		It("stores and retrieves a user", func() {
			ctx := context.Background()
			user := newUser("create@example.com")

			Expect(repo.Create(ctx, user)).To(Succeed())

			got, err := repo.GetByID(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Email).To(Equal("create@example.com"))
			Expect(got.Username).To(Equal("tester"))
			Expect(got.ResetTokenHash).To(BeNil())
		})

		It("rejects a duplicate email", func() {
			ctx := context.Background()
			Expect(repo.Create(ctx, newUser("dup@example.com"))).To(Succeed())

			err := repo.Create(ctx, newUser("dup@example.com"))
			Expect(err).To(MatchError(auth.ErrAlreadyExists))
		})

		It("rejects the same email with different casing via the lower index", func() {
			ctx := context.Background()
			Expect(repo.Create(ctx, newUser("case@example.com"))).To(Succeed())

			clash := newUser("other@example.com")
			clash.Email = "CASE@example.com"
			err := repo.Create(ctx, clash)
			Expect(err).To(MatchError(auth.ErrAlreadyExists))
		})
	})

	Describe("GetByEmail", func() {
		It("is case-insensitive", func() {
			ctx := context.Background()
			user := newUser("mixed@example.com")
			Expect(repo.Create(ctx, user)).To(Succeed())

			got, err := repo.GetByEmail(ctx, "MIXED@EXAMPLE.COM")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(user.ID))
		})

		It("wraps not-found for unknown email", func() {
			_, err := repo.GetByEmail(context.Background(), "ghost@example.com")
			Expect(err).To(MatchError(auth.ErrNotFound))
		})
	})

	Describe("SetResetToken", func() {
		It("records and overwrites the pending token", func() {
			ctx := context.Background()
			user := newUser("reset@example.com")
			Expect(repo.Create(ctx, user)).To(Succeed())

			expiresAt := time.Now().Add(time.Hour)
			Expect(repo.SetResetToken(ctx, user.ID, "hash-one", expiresAt)).To(Succeed())
			Expect(repo.SetResetToken(ctx, user.ID, "hash-two", expiresAt)).To(Succeed())

			got, err := repo.GetByID(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ResetTokenHash).NotTo(BeNil())
			Expect(*got.ResetTokenHash).To(Equal("hash-two"))
		})

		It("wraps not-found for unknown user", func() {
			err := repo.SetResetToken(context.Background(), ulid.Make(), "hash", time.Now().Add(time.Hour))
			Expect(err).To(MatchError(auth.ErrNotFound))
		})
	})

	Describe("ConsumeResetToken", func() {
		It("swaps the password and clears the reset columns", func() {
			ctx := context.Background()
			user := newUser("consume@example.com")
			Expect(repo.Create(ctx, user)).To(Succeed())
			Expect(repo.SetResetToken(ctx, user.ID, "spend-me", time.Now().Add(time.Hour))).To(Succeed())

			got, err := repo.ConsumeResetToken(ctx, "spend-me", "$argon2id$new")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(user.ID))
			Expect(got.PasswordHash).To(Equal("$argon2id$new"))
			Expect(got.ResetTokenHash).To(BeNil())
			Expect(got.ResetTokenExpiresAt).To(BeNil())
		})

		It("rejects an expired token", func() {
			ctx := context.Background()
			user := newUser("expired@example.com")
			Expect(repo.Create(ctx, user)).To(Succeed())
			Expect(repo.SetResetToken(ctx, user.ID, "stale", time.Now().Add(-time.Minute))).To(Succeed())

			_, err := repo.ConsumeResetToken(ctx, "stale", "$argon2id$new")
			Expect(err).To(MatchError(auth.ErrInvalidOrExpired))
		})

		It("rejects a second spend of the same token", func() {
			ctx := context.Background()
			user := newUser("double@example.com")
			Expect(repo.Create(ctx, user)).To(Succeed())
			Expect(repo.SetResetToken(ctx, user.ID, "once", time.Now().Add(time.Hour))).To(Succeed())

			_, err := repo.ConsumeResetToken(ctx, "once", "$argon2id$first")
			Expect(err).NotTo(HaveOccurred())

			_, err = repo.ConsumeResetToken(ctx, "once", "$argon2id$second")
			Expect(err).To(MatchError(auth.ErrInvalidOrExpired))
		})

		It("lets exactly one concurrent spend win", func() {
			ctx := context.Background()
			user := newUser("race@example.com")
			Expect(repo.Create(ctx, user)).To(Succeed())
			Expect(repo.SetResetToken(ctx, user.ID, "contested", time.Now().Add(time.Hour))).To(Succeed())

			const attempts = 8
			errs := make([]error, attempts)
			var wg sync.WaitGroup
			for i := range attempts {
				wg.Add(1)
				go func(n int) {
					defer wg.Done()
					_, errs[n] = repo.ConsumeResetToken(ctx, "contested", "$argon2id$race")
				}(i)
			}
			wg.Wait()

			winners := 0
			for _, err := range errs {
				if err == nil {
					winners++
				} else {
					Expect(err).To(MatchError(auth.ErrInvalidOrExpired))
				}
			}
			Expect(winners).To(Equal(1))
		})
	})
})
