package postgres

import (
	"testing"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"gorm.io/gorm"

	ledgerdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/ledger"
	ledgerpkg "github.com/frahmantamala/marketplace-settlement/internal/ledger"
	"github.com/frahmantamala/marketplace-settlement/internal/testsupport"
)

func TestLedgerRepository(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Ledger Repository Suite")
}

var _ = ginkgo.Describe("LedgerRepository", func() {
	var (
		db   *gorm.DB
		repo ledgerpkg.RepositoryAPI
	)

	ginkgo.BeforeEach(func() {
		var err error
		db, err = testsupport.OpenDB()
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		repo = NewLedgerRepository(db)
	})

	entry := func(entryType ledgerdm.EntryType, amount int64, causation string) *ledgerdm.LedgerEntry {
		return &ledgerdm.LedgerEntry{
			PaymentID:   1,
			EntryType:   entryType,
			AmountCents: amount,
			Currency:    "USD",
			CausationID: causation,
		}
	}

	ginkgo.Describe("Append", func() {
		ginkgo.It("should insert entries and assign IDs", func() {
			entries := []*ledgerdm.LedgerEntry{
				entry(ledgerdm.EntryGross, 1000, "checkout:ord-1"),
				entry(ledgerdm.EntryPlatformFee, -100, "checkout:ord-1"),
			}

			err := repo.Append(entries)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(entries[0].ID).To(gomega.BeNumerically(">", 0))
			gomega.Expect(entries[1].ID).To(gomega.BeNumerically(">", 0))
		})

		ginkgo.It("should reject a duplicate (payment, causation, entry type) row", func() {
			err := repo.Append([]*ledgerdm.LedgerEntry{entry(ledgerdm.EntryGross, 1000, "checkout:ord-1")})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			err = repo.Append([]*ledgerdm.LedgerEntry{entry(ledgerdm.EntryGross, 1000, "checkout:ord-1")})
			gomega.Expect(err).To(gomega.HaveOccurred())
		})
	})

	ginkgo.Describe("ExistsCausation", func() {
		ginkgo.It("should report recorded causations", func() {
			err := repo.Append([]*ledgerdm.LedgerEntry{entry(ledgerdm.EntryGross, 1000, "checkout:ord-1")})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			exists, err := repo.ExistsCausation(1, "checkout:ord-1")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(exists).To(gomega.BeTrue())

			exists, err = repo.ExistsCausation(1, "fee:report-1")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(exists).To(gomega.BeFalse())
		})
	})

	ginkgo.Describe("SumByPayment", func() {
		ginkgo.It("should return the signed total", func() {
			err := repo.Append([]*ledgerdm.LedgerEntry{
				entry(ledgerdm.EntryGross, 1000, "checkout:ord-1"),
				entry(ledgerdm.EntryPlatformFee, -100, "checkout:ord-1"),
			})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			err = repo.Append([]*ledgerdm.LedgerEntry{entry(ledgerdm.EntryProcessorFeesFinal, -50, "fee:report-1")})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			sum, err := repo.SumByPayment(1)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(sum).To(gomega.Equal(int64(850)))
		})

		ginkgo.It("should return zero for a payment with no entries", func() {
			sum, err := repo.SumByPayment(42)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(sum).To(gomega.Equal(int64(0)))
		})
	})

	ginkgo.Describe("SumProcessorFees", func() {
		ginkgo.It("should only sum processor fee entry types", func() {
			err := repo.Append([]*ledgerdm.LedgerEntry{
				entry(ledgerdm.EntryGross, 1000, "checkout:ord-1"),
				entry(ledgerdm.EntryPlatformFee, -100, "checkout:ord-1"),
			})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			err = repo.Append([]*ledgerdm.LedgerEntry{entry(ledgerdm.EntryProcessorFeesFinal, -50, "fee:report-1")})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			err = repo.Append([]*ledgerdm.LedgerEntry{entry(ledgerdm.EntryProcessorFeesAdjustment, -20, "fee:report-2")})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			sum, err := repo.SumProcessorFees(1)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(sum).To(gomega.Equal(int64(-70)))
		})
	})

	ginkgo.Describe("ListByPayment", func() {
		ginkgo.It("should return entries in append order", func() {
			err := repo.Append([]*ledgerdm.LedgerEntry{
				entry(ledgerdm.EntryGross, 1000, "checkout:ord-1"),
				entry(ledgerdm.EntryPlatformFee, -100, "checkout:ord-1"),
			})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			entries, err := repo.ListByPayment(1)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(entries).To(gomega.HaveLen(2))
			gomega.Expect(entries[0].EntryType).To(gomega.Equal(ledgerdm.EntryGross))
			gomega.Expect(entries[1].EntryType).To(gomega.Equal(ledgerdm.EntryPlatformFee))
		})
	})
})
