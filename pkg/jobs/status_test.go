package jobs_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/shelfshot/shelfshot/pkg/db/models"
	"github.com/shelfshot/shelfshot/pkg/jobs"
)

var _ = Describe("ComputeOrderStatus", func() {
	It("completes when every item produced images", func() {
		status := jobs.ComputeOrderStatus(6, 0, 3)
		Expect(status).To(Equal(models.OrderCompleted))
	})

	It("is partial when some items failed but images exist", func() {
		status := jobs.ComputeOrderStatus(4, 1, 3)
		Expect(status).To(Equal(models.OrderPartial))
	})

	It("fails when every item failed", func() {
		status := jobs.ComputeOrderStatus(0, 3, 3)
		Expect(status).To(Equal(models.OrderFailed))
	})

	It("fails when no images were delivered even without reported failures", func() {
		// A buggy path could record zero failures and zero images; that
		// must never read as success.
		status := jobs.ComputeOrderStatus(0, 0, 3)
		Expect(status).To(Equal(models.OrderFailed))
	})

	It("fails an empty order", func() {
		status := jobs.ComputeOrderStatus(0, 0, 0)
		Expect(status).To(Equal(models.OrderFailed))
	})
})
