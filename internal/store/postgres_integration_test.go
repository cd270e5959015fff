// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/parleychat/parley/internal/accounts"
	"github.com/parleychat/parley/internal/realm"
	"github.com/parleychat/parley/internal/store"
)

var _ = Describe("Store", Ordered, func() {
	var (
		ctx         context.Context
		pgContainer *postgres.PostgresContainer
		st          *store.Store
	)

	BeforeAll(func() {
		ctx = context.Background()

		var err error
		pgContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("parley_test"),
			postgres.WithUsername("parley"),
			postgres.WithPassword("parley"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2)),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		migrator, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Close()).To(Succeed())

		st, err = store.New(ctx, connStr)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if st != nil {
			st.Close()
		}
		if pgContainer != nil {
			Expect(pgContainer.Terminate(ctx)).To(Succeed())
		}
	})

	It("reports ready after connecting", func() {
		Expect(st.Ready(ctx)).To(BeTrue())
	})

	Describe("realms", func() {
		It("round-trips a realm and enforces subdomain uniqueness", func() {
			r, err := realm.New("Acme", "acme", "corp.example", realm.OrgTypeCorporate, time.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Realms().Create(ctx, r)).To(Succeed())

			got, err := st.Realms().GetBySubdomain(ctx, "ACME")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Name).To(Equal("Acme"))

			exists, err := st.Realms().ExistsBySubdomain(ctx, "acme")
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeTrue())

			dup, err := realm.New("Acme Again", "acme", "", realm.OrgTypeCorporate, time.Now())
			Expect(err).NotTo(HaveOccurred())
			err = st.Realms().Create(ctx, dup)
			Expect(err).To(MatchError(realm.ErrAlreadyExists))
		})
	})

	Describe("accounts", func() {
		It("creates users and matches email case-insensitively", func() {
			r, err := realm.New("Globex", "globex", "globex.example", realm.OrgTypeCorporate, time.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Realms().Create(ctx, r)).To(Succeed())

			user, err := accounts.NewUser(r.ID, "Ana@Globex.example", "Ana Lopez", "hash", time.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Users().Create(ctx, user)).To(Succeed())

			got, err := st.Users().GetByEmail(ctx, r.ID, "ana@globex.example")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(user.ID))

			matches, err := st.Users().ListActiveNonBotByEmail(ctx, "ANA@globex.example")
			Expect(err).NotTo(HaveOccurred())
			Expect(matches).To(HaveLen(1))
		})

		It("stores sessions and reset tokens against the user", func() {
			r, err := realm.New("Initech", "initech", "", realm.OrgTypeCorporate, time.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Realms().Create(ctx, r)).To(Succeed())

			user, err := accounts.NewUser(r.ID, "peter@initech.example", "Peter Gibbons", "hash", time.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Users().Create(ctx, user)).To(Succeed())

			_, tokenHash, err := accounts.GenerateSessionToken()
			Expect(err).NotTo(HaveOccurred())
			session, err := accounts.NewWebSession(user.ID, r.ID, tokenHash, "test-agent", "127.0.0.1",
				time.Now().Add(accounts.SessionTokenExpiry))
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Sessions().Create(ctx, session)).To(Succeed())

			gotSession, err := st.Sessions().GetByTokenHash(ctx, tokenHash)
			Expect(err).NotTo(HaveOccurred())
			Expect(gotSession.UserID).To(Equal(user.ID))

			_, resetHash, err := accounts.GenerateResetToken()
			Expect(err).NotTo(HaveOccurred())
			reset, err := accounts.NewPasswordReset(user.ID, resetHash, time.Now().Add(accounts.ResetTokenExpiry))
			Expect(err).NotTo(HaveOccurred())
			Expect(st.PasswordResets().Create(ctx, reset)).To(Succeed())

			Expect(st.PasswordResets().DeleteByUser(ctx, user.ID)).To(Succeed())
			_, err = st.PasswordResets().GetByTokenHash(ctx, resetHash)
			Expect(err).To(MatchError(accounts.ErrNotFound))
		})
	})
})
