package scraper

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("NormalizeURL", func() {
	const base = "https://www.amazon.com"

	It("makes protocol-relative URLs absolute", func() {
		Expect(NormalizeURL("//m.media-amazon.com/images/I/x.jpg", base)).
			To(Equal("https://m.media-amazon.com/images/I/x.jpg"))
	})

	It("resolves root-relative paths against the store base", func() {
		Expect(NormalizeURL("/images/I/x.jpg", base)).
			To(Equal("https://www.amazon.com/images/I/x.jpg"))
	})

	It("rejects data URIs and relative fragments", func() {
		Expect(NormalizeURL("data:image/gif;base64,R0lGOD", base)).To(BeEmpty())
		Expect(NormalizeURL("javascript:void(0)", base)).To(BeEmpty())
		Expect(NormalizeURL("images/x.jpg", base)).To(BeEmpty())
		Expect(NormalizeURL("  ", base)).To(BeEmpty())
	})

	It("upgrades Amazon size tokens to the large variant", func() {
		Expect(NormalizeURL("https://m.media-amazon.com/images/I/71x._SX300_.jpg", base)).
			To(Equal("https://m.media-amazon.com/images/I/71x._AC_SL1500_.jpg"))
	})

	It("upgrades Walmart odn thumbnail parameters", func() {
		Expect(NormalizeURL("https://i5.walmartimages.com/asr/x.jpg?odnHeight=180&odnWidth=180", base)).
			To(Equal("https://i5.walmartimages.com/asr/x.jpg?odnHeight=1500&odnWidth=1500"))
	})

	It("upgrades scene7 wid/hei parameters", func() {
		Expect(NormalizeURL("https://target.scene7.com/is/image/Target/GUEST_x?wid=300&hei=300", base)).
			To(Equal("https://target.scene7.com/is/image/Target/GUEST_x?wid=1500&hei=1500"))
	})

	It("upgrades eBay thumbnail names", func() {
		Expect(NormalizeURL("https://i.ebayimg.com/images/g/abc/s-l300.jpg", base)).
			To(Equal("https://i.ebayimg.com/images/g/abc/s-l1600.jpg"))
	})

	It("leaves already-large URLs untouched", func() {
		u := "https://i.ebayimg.com/images/g/abc/s-l1600.jpg"
		Expect(NormalizeURL(u, base)).To(Equal(u))
	})
})

var _ = Describe("IsDenied", func() {
	It("rejects site chrome and tracking assets", func() {
		for _, u := range []string{
			"https://cdn.example.com/assets/logo.png",
			"https://cdn.example.com/sprite-sheet.png",
			"https://cdn.example.com/img/payment-visa.svg",
			"https://cdn.example.com/1x1.gif",
			"https://cdn.example.com/social/facebook.png",
		} {
			Expect(IsDenied(u)).To(BeTrue(), "Expected deny: %s", u)
		}
	})

	It("accepts plausible product images", func() {
		Expect(IsDenied("https://m.media-amazon.com/images/I/71xyz._AC_SL1500_.jpg")).To(BeFalse())
	})
})

var _ = Describe("FilterURLs", func() {
	const base = "https://www.amazon.com"

	It("normalizes, deduplicates, and preserves discovery order", func() {
		raw := []string{
			"//m.media-amazon.com/images/I/a.jpg",
			"https://m.media-amazon.com/images/I/a.jpg",
			"https://m.media-amazon.com/images/I/b.jpg",
		}
		out := FilterURLs(raw, base, "", 10)
		Expect(out).To(Equal([]string{
			"https://m.media-amazon.com/images/I/a.jpg",
			"https://m.media-amazon.com/images/I/b.jpg",
		}))
	})

	It("deduplicates thumbnails that normalize to the same full-size URL", func() {
		raw := []string{
			"https://m.media-amazon.com/images/I/x._SX300_.jpg",
			"https://m.media-amazon.com/images/I/x._SX500_.jpg",
		}
		out := FilterURLs(raw, base, "", 10)
		Expect(out).To(HaveLen(1))
	})

	It("applies the store's URL filter", func() {
		raw := []string{
			"https://m.media-amazon.com/images/I/a.jpg",
			"https://thirdparty-ads.example.com/b.jpg",
		}
		out := FilterURLs(raw, base, "media-amazon.com", 10)
		Expect(out).To(HaveLen(1))
		Expect(out[0]).To(ContainSubstring("media-amazon.com"))
	})

	It("drops denied URLs and honors the cap", func() {
		raw := []string{
			"https://cdn.example.com/logo.png",
			"https://cdn.example.com/p1.jpg",
			"https://cdn.example.com/p2.jpg",
			"https://cdn.example.com/p3.jpg",
		}
		out := FilterURLs(raw, base, "", 2)
		Expect(out).To(Equal([]string{
			"https://cdn.example.com/p1.jpg",
			"https://cdn.example.com/p2.jpg",
		}))
	})
})
