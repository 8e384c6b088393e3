// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CredKeeper Contributors

//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/credkeeper/credkeeper/internal/auth"
	authpg "github.com/credkeeper/credkeeper/internal/auth/postgres"
	"github.com/credkeeper/credkeeper/internal/httpapi"
	"github.com/credkeeper/credkeeper/internal/store"
)

// mailbox captures reset mails in memory.
type mailbox struct {
	mu     sync.Mutex
	bodies []string
}

func (m *mailbox) Send(_ context.Context, _, _, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bodies = append(m.bodies, body)
	return nil
}

func (m *mailbox) lastBody() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.bodies) == 0 {
		return ""
	}
	return m.bodies[len(m.bodies)-1]
}

var resetTokenRe = regexp.MustCompile(`[0-9a-f]{64}`)

// testStack is the full service wired against a real database.
type testStack struct {
	baseURL string
	mailbox *mailbox
	cleanup func()
}

func startStack() (*testStack, error) {
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
		return nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		return nil, err
	}
	if err := migrator.Close(); err != nil {
		return nil, err
	}

	var pool *pgxpool.Pool
	pool, err = store.Connect(ctx, connStr)
	if err != nil {
		return nil, err
	}

	issuer, err := auth.NewTokenIssuer([]byte("an-integration-test-key-32-bytes"))
	if err != nil {
		return nil, err
	}

	mbox := &mailbox{}
	svc, err := auth.NewService(authpg.NewUserRepository(pool), auth.NewArgon2idHasher(), issuer, mbox)
	if err != nil {
		return nil, err
	}

	server := httpapi.NewServer("127.0.0.1:0", svc, nil, nil)
	if _, err := server.Start(); err != nil {
		return nil, err
	}

	cleanup := func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Stop(stopCtx)
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return &testStack{
		baseURL: "http://" + server.Addr(),
		mailbox: mbox,
		cleanup: cleanup,
	}, nil
}

func (s *testStack) post(path, body string) (*http.Response, map[string]any) {
	resp, err := http.Post(s.baseURL+path, "application/json", bytes.NewReader([]byte(body)))
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

var _ = Describe("Authentication flow", func() {
	var stack *testStack

	BeforeEach(func() {
		var err error
		stack, err = startStack()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		stack.cleanup()
	})

	It("registers, logs in, and resets a password end to end", func() {
		resp, body := stack.post("/v1/auth/register",
			`{"username":"alice","email":"alice@example.com","password":"hunter22"}`)
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		Expect(body["email"]).To(Equal("alice@example.com"))

		resp, body = stack.post("/v1/auth/login",
			`{"email":"alice@example.com","password":"hunter22"}`)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body["token"]).NotTo(BeEmpty())

		resp, _ = stack.post("/v1/auth/forgot-password", `{"email":"alice@example.com"}`)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		token := resetTokenRe.FindString(stack.mailbox.lastBody())
		Expect(token).NotTo(BeEmpty())

		resp, _ = stack.post("/v1/auth/reset-password/"+token, `{"password":"brand-new-pass"}`)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		resp, _ = stack.post("/v1/auth/login",
			`{"email":"alice@example.com","password":"hunter22"}`)
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))

		resp, _ = stack.post("/v1/auth/login",
			`{"email":"alice@example.com","password":"brand-new-pass"}`)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		resp, _ = stack.post("/v1/auth/reset-password/"+token, `{"password":"attacker-pass"}`)
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("rejects duplicate registrations case-insensitively", func() {
		resp, _ := stack.post("/v1/auth/register",
			`{"username":"alice","email":"alice@example.com","password":"hunter22"}`)
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		resp, _ = stack.post("/v1/auth/register",
			`{"username":"clone","email":"ALICE@example.com","password":"other-pass"}`)
		Expect(resp.StatusCode).To(Equal(http.StatusConflict))
	})

	It("acknowledges forgot-password identically for unknown emails", func() {
		resp, known := stack.post("/v1/auth/forgot-password", `{"email":"ghost@example.com"}`)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(fmt.Sprint(known["message"])).To(ContainSubstring("if the email is registered"))
	})
})
