package entitlement_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"gorm.io/gorm"

	entitlementdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/entitlement"
	"github.com/frahmantamala/marketplace-settlement/internal/entitlement"
	entitlementpg "github.com/frahmantamala/marketplace-settlement/internal/entitlement/postgres"
	"github.com/frahmantamala/marketplace-settlement/internal/testsupport"
)

func TestEntitlementService(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Entitlement Service Suite")
}

var _ = ginkgo.Describe("Entitlement Service", func() {
	var (
		db  *gorm.DB
		svc *entitlement.Service
		ctx context.Context
	)

	lg := slog.New(slog.NewTextHandler(io.Discard, nil))

	ginkgo.BeforeEach(func() {
		var err error
		db, err = testsupport.OpenDB()
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		svc = entitlement.NewService(entitlementpg.NewEntitlementRepository(db), lg)
		ctx = context.Background()
	})

	status := func() string {
		ents, err := svc.ListForPayment(ctx, 1)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(ents).To(gomega.HaveLen(1))
		return ents[0].Status
	}

	ginkgo.It("should grant at most one entitlement per payment and kind", func() {
		gomega.Expect(svc.GrantForPayment(ctx, 1, "order_access")).ToNot(gomega.HaveOccurred())
		gomega.Expect(svc.GrantForPayment(ctx, 1, "order_access")).ToNot(gomega.HaveOccurred())

		ents, err := svc.ListForPayment(ctx, 1)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(ents).To(gomega.HaveLen(1))
		gomega.Expect(ents[0].Status).To(gomega.Equal(entitlementdm.StatusActive))
	})

	ginkgo.It("should require a kind", func() {
		gomega.Expect(svc.GrantForPayment(ctx, 1, "")).To(gomega.HaveOccurred())
	})

	ginkgo.It("should suspend and restore across a dispute", func() {
		gomega.Expect(svc.GrantForPayment(ctx, 1, "order_access")).ToNot(gomega.HaveOccurred())

		n, err := svc.SuspendTx(db, 1)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(n).To(gomega.Equal(int64(1)))
		gomega.Expect(status()).To(gomega.Equal(entitlementdm.StatusSuspended))

		n, err = svc.RestoreTx(db, 1)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(n).To(gomega.Equal(int64(1)))
		gomega.Expect(status()).To(gomega.Equal(entitlementdm.StatusActive))
	})

	ginkgo.It("should revoke terminally from either live state", func() {
		gomega.Expect(svc.GrantForPayment(ctx, 1, "order_access")).ToNot(gomega.HaveOccurred())
		_, err := svc.SuspendTx(db, 1)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		n, err := svc.RevokeTx(db, 1)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(n).To(gomega.Equal(int64(1)))
		gomega.Expect(status()).To(gomega.Equal(entitlementdm.StatusRevoked))

		// Restoring a revoked entitlement is not a thing.
		n, err = svc.RestoreTx(db, 1)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(n).To(gomega.Equal(int64(0)))
		gomega.Expect(status()).To(gomega.Equal(entitlementdm.StatusRevoked))
	})
})
