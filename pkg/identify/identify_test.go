package identify

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/shelfshot/shelfshot/pkg/llm"
)

// cannedLLM returns a fixed completion or error.
type cannedLLM struct {
	completion string
	err        error
}

func (c *cannedLLM) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return c.completion, c.err
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

var _ = Describe("Identifier", func() {
	It("returns nil without a configured model", func() {
		identifier := NewIdentifier(nil, quietLogger())
		Expect(identifier.Lookup(context.Background(), "B0ABCD1234")).To(BeNil())
	})

	It("parses a clean JSON completion", func() {
		model := &cannedLLM{completion: `{"name":"Stainless Tea Kettle","brand":"BrewRight","description":"2.5qt stovetop kettle","keywords":["kettle","stovetop"],"urls":["https://www.example.com/p/1"]}`}
		identifier := NewIdentifier(model, quietLogger())

		product := identifier.Lookup(context.Background(), "B0ABCD1234")
		Expect(product).NotTo(BeNil())
		Expect(product.Name).To(Equal("Stainless Tea Kettle"))
		Expect(product.Brand).To(Equal("BrewRight"))
		Expect(product.Keywords).To(ConsistOf("kettle", "stovetop"))
		Expect(product.URLs).To(HaveLen(1))
	})

	It("tolerates code fences and prose around the JSON", func() {
		model := &cannedLLM{completion: "Sure, here is the product:\n```json\n{\"name\":\"Widget\",\"brand\":\"Acme\"}\n```\nLet me know if you need more."}
		identifier := NewIdentifier(model, quietLogger())

		product := identifier.Lookup(context.Background(), "B0ABCD1234")
		Expect(product).NotTo(BeNil())
		Expect(product.Name).To(Equal("Widget"))
	})

	It("degrades to nil on a model error", func() {
		model := &cannedLLM{err: fmt.Errorf("rate limited")}
		identifier := NewIdentifier(model, quietLogger())
		Expect(identifier.Lookup(context.Background(), "B0ABCD1234")).To(BeNil())
	})

	It("degrades to nil on an unparseable completion", func() {
		model := &cannedLLM{completion: "I could not find anything about that identifier."}
		identifier := NewIdentifier(model, quietLogger())
		Expect(identifier.Lookup(context.Background(), "B0ABCD1234")).To(BeNil())
	})

	It("rejects an empty product object", func() {
		model := &cannedLLM{completion: `{"name":"","brand":"","keywords":[],"urls":[]}`}
		identifier := NewIdentifier(model, quietLogger())
		Expect(identifier.Lookup(context.Background(), "B0ABCD1234")).To(BeNil())
	})
})
