package receipt

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage *LocalStorage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(filepath.Join(tmpDir, "uploads"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("creates the upload directory", func() {
		Expect(filepath.Join(tmpDir, "uploads")).To(BeADirectory())
	})

	Describe("Save and Get", func() {
		It("round-trips an upload under its stored name", func() {
			name, err := storage.Save("0b6c_bescom bill.pdf", []byte("%PDF-1.7"))
			Expect(err).NotTo(HaveOccurred())
			Expect(name).To(Equal("0b6c_bescom bill.pdf"))
			Expect(filepath.Join(tmpDir, "uploads", name)).To(BeAnExistingFile())

			data, err := storage.Get(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("%PDF-1.7"))
		})

		It("fails to read a missing upload", func() {
			_, err := storage.Get("missing.png")
			Expect(err).To(MatchError(ContainSubstring("reading file")))
			Expect(err).To(MatchError(os.ErrNotExist))
		})
	})

	Describe("Delete", func() {
		It("removes the upload", func() {
			_, err := storage.Save("a_receipt.png", []byte("png"))
			Expect(err).NotTo(HaveOccurred())

			Expect(storage.Delete("a_receipt.png")).To(Succeed())
			Expect(storage.Path("a_receipt.png")).NotTo(BeAnExistingFile())
		})

		It("fails for a missing upload", func() {
			Expect(storage.Delete("missing.png")).To(MatchError(ContainSubstring("deleting file")))
		})
	})

	Describe("Path", func() {
		It("resolves inside the upload directory", func() {
			Expect(storage.Path("x_scan.jpg")).To(Equal(filepath.Join(tmpDir, "uploads", "x_scan.jpg")))
		})

		It("drops directory components", func() {
			Expect(storage.Path("../../etc/passwd")).To(Equal(filepath.Join(tmpDir, "uploads", "passwd")))
		})
	})

	It("fails when the directory cannot be created", func() {
		blocker := filepath.Join(tmpDir, "file")
		Expect(os.WriteFile(blocker, []byte("x"), 0644)).To(Succeed())
		_, err := NewLocalStorage(filepath.Join(blocker, "uploads"))
		Expect(err).To(MatchError(ContainSubstring("creating storage directory")))
	})
})
