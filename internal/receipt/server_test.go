package receipt

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/receipt-analyzer/internal/scanning"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		archive     *mockArchive
		storage     *mockStorage
		extractor   *mockExtractor
		parser      *mockParser
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		service := NewServiceWithDeps(db, archive, storage, extractor, parser,
			&mockIDGenerator{id: "abc"}, &mockTimeSource{now: time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)})
		server = NewServerWithMux(service, auth, http.NewServeMux())
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		ghttpServer = ghttp.NewServer()
		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions} {
			ghttpServer.RouteToHandler(method, regexp.MustCompile(`^/`), server.Handler().ServeHTTP)
		}
	}

	BeforeEach(func() {
		db = newMockDB()
		archive = newMockArchive()
		storage = newMockStorage()
		extractor = &mockExtractor{text: "RELIANCE\nTOTAL 25.99"}
		parser = newMockParser()
		auth = BasicAuth{}
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	get := func(path string) *http.Response {
		resp, err := http.Get(ghttpServer.URL() + path)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	body := func(resp *http.Response) string {
		b, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return string(b)
	}

	upload := func(filename, content string) *http.Response {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		part, err := w.CreateFormFile("file", filename)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write([]byte(content))
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Close()).To(Succeed())

		resp, err := http.Post(ghttpServer.URL()+"/api/receipts", w.FormDataContentType(), &buf)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	seed := func() {
		db.records[1] = &Record{ID: 1, Receipt: Receipt{Vendor: "Reliance", Date: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), Amount: 120.1, Category: "Groceries"}}
		db.records[2] = &Record{ID: 2, Receipt: Receipt{Vendor: "Airtel", Date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), Amount: 499, Category: "Internet"}}
		db.nextID = 2
	}

	Describe("dashboard", func() {
		It("serves the index page", func() {
			resp := get("/")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(ContainSubstring("text/html"))
			Expect(body(resp)).To(ContainSubstring("Receipt Analyzer"))
		})

		It("serves the script", func() {
			resp := get("/static/app.js")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(ContainSubstring("javascript"))
		})

		It("rejects POST to the index", func() {
			resp, err := http.Post(ghttpServer.URL()+"/", "text/plain", nil)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusMethodNotAllowed))
		})
	})

	Describe("GET /api/receipts", func() {
		BeforeEach(seed)

		It("lists receipts as JSON", func() {
			resp := get("/api/receipts")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

			var records []*Record
			Expect(json.NewDecoder(resp.Body).Decode(&records)).To(Succeed())
			Expect(records).To(HaveLen(2))
			Expect(records[0].Vendor).To(Equal("Reliance"))
		})

		It("searches by keyword", func() {
			resp := get("/api/receipts?q=air")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(db.lastKeyword).To(Equal("air"))
		})

		It("filters by a day range that covers the whole end day", func() {
			resp := get("/api/receipts?from=2024-01-01&to=2024-01-31")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(db.lastStart).To(Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
			Expect(db.lastEnd).To(Equal(time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)))
		})

		It("sorts", func() {
			resp := get("/api/receipts?sort=amount&order=desc")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(db.lastField).To(Equal("amount"))
			Expect(db.lastOrder).To(Equal("desc"))
		})

		It("rejects malformed dates", func() {
			resp := get("/api/receipts?from=01/01/2024")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("returns 400 for an invalid sort", func() {
			db.queryErr = fmt.Errorf("%w: field %q", ErrInvalidSort, "vendor")
			resp := get("/api/receipts?sort=vendor")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(body(resp)).To(ContainSubstring("invalid sorting parameters"))
		})

		It("returns 500 when the database fails", func() {
			db.listErr = errors.New("database error")
			resp := get("/api/receipts")
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(body(resp)).To(ContainSubstring("Internal server error"))
		})

		It("returns an empty array without receipts", func() {
			db.records = map[int64]*Record{}
			resp := get("/api/receipts")
			Expect(strings.TrimSpace(body(resp))).To(Equal("[]"))
		})
	})

	Describe("POST /api/receipts", func() {
		It("ingests an upload and returns 201", func() {
			resp := upload("bill.png", "png bytes")
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var ingested Ingested
			Expect(json.NewDecoder(resp.Body).Decode(&ingested)).To(Succeed())
			Expect(ingested.Receipt.ID).To(Equal(int64(1)))
			Expect(ingested.Receipt.Vendor).To(Equal("Reliance"))
			Expect(ingested.Text).To(Equal("RELIANCE\nTOTAL 25.99"))
			Expect(storage.files).To(HaveKey("abc_bill.png"))
		})

		It("returns 415 for an unsupported format", func() {
			extractor.err = fmt.Errorf("%w: %q", scanning.ErrUnsupportedFormat, ".docx")
			resp := upload("bill.docx", "zip")
			Expect(resp.StatusCode).To(Equal(http.StatusUnsupportedMediaType))
			Expect(body(resp)).To(ContainSubstring("unsupported file extension"))
			Expect(storage.files).To(BeEmpty())
		})

		It("returns 422 when the text cannot be parsed", func() {
			parser.err = errors.New("amount not found")
			resp := upload("bill.png", "png bytes")
			Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))

			var payload map[string]string
			Expect(json.NewDecoder(resp.Body).Decode(&payload)).To(Succeed())
			Expect(payload["error"]).To(ContainSubstring("amount not found"))
		})

		It("returns 400 without a file", func() {
			var buf bytes.Buffer
			w := multipart.NewWriter(&buf)
			Expect(w.WriteField("note", "x")).To(Succeed())
			Expect(w.Close()).To(Succeed())

			resp, err := http.Post(ghttpServer.URL()+"/api/receipts", w.FormDataContentType(), &buf)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(body(resp)).To(ContainSubstring("No file was selected"))
		})

		It("returns 400 for a non-multipart body", func() {
			resp, err := http.Post(ghttpServer.URL()+"/api/receipts", "application/json", strings.NewReader("{}"))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("POST /api/receipts/text", func() {
		It("ingests pasted text", func() {
			resp, err := http.Post(ghttpServer.URL()+"/api/receipts/text", "application/json",
				strings.NewReader(`{"text": "AIRTEL\nTotal 499"}`))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			Expect(parser.texts).To(Equal([]string{"AIRTEL\nTotal 499"}))
		})

		It("returns 422 for validation failures", func() {
			parser.err = fmt.Errorf("%w: amount must be positive", ErrValidation)
			resp, err := http.Post(ghttpServer.URL()+"/api/receipts/text", "application/json",
				strings.NewReader(`{"text": "Total 0"}`))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
		})

		It("returns 400 for invalid JSON", func() {
			resp, err := http.Post(ghttpServer.URL()+"/api/receipts/text", "application/json", strings.NewReader(`{`))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /api/receipts/{id}", func() {
		BeforeEach(seed)

		It("returns the receipt", func() {
			resp := get("/api/receipts/2")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var record Record
			Expect(json.NewDecoder(resp.Body).Decode(&record)).To(Succeed())
			Expect(record.Vendor).To(Equal("Airtel"))
			Expect(record.Date).To(Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))
		})

		It("returns 404 for an unknown id", func() {
			resp := get("/api/receipts/99")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("returns 400 for a malformed id", func() {
			resp := get("/api/receipts/abc")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /api/receipts/{id}/text", func() {
		It("returns the archived document", func() {
			archive.docs[4] = &Document{ReceiptID: 4, Text: "BESCOM\nTotal 800"}
			resp := get("/api/receipts/4/text")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var doc Document
			Expect(json.NewDecoder(resp.Body).Decode(&doc)).To(Succeed())
			Expect(doc.Text).To(Equal("BESCOM\nTotal 800"))
		})

		It("returns 404 without a document", func() {
			resp := get("/api/receipts/4/text")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /api/receipts/{id}/file", func() {
		It("returns the stored file with its content type", func() {
			archive.docs[3] = &Document{ReceiptID: 3, Filename: "abc_bill.png", ContentType: "image/png"}
			storage.files["abc_bill.png"] = []byte("png data")

			resp := get("/api/receipts/3/file")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
			Expect(body(resp)).To(Equal("png data"))
		})

		It("returns 404 when the file is missing", func() {
			archive.docs[3] = &Document{ReceiptID: 3, Filename: "gone.png", ContentType: "image/png"}
			resp := get("/api/receipts/3/file")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("DELETE /api/receipts/{id}", func() {
		BeforeEach(seed)

		del := func(path string) *http.Response {
			req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+path, nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(resp.Body.Close)
			return resp
		}

		It("deletes and returns 204", func() {
			resp := del("/api/receipts/1")
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.records).NotTo(HaveKey(int64(1)))
		})

		It("returns 404 for an unknown id", func() {
			resp := del("/api/receipts/77")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("returns 500 when the database fails", func() {
			db.deleteErr = errors.New("database error")
			resp := del("/api/receipts/1")
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("summaries", func() {
		It("returns category totals", func() {
			resp := get("/api/summary/categories")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var totals []CategoryTotal
			Expect(json.NewDecoder(resp.Body).Decode(&totals)).To(Succeed())
			Expect(totals).To(Equal([]CategoryTotal{{Category: "Groceries", Total: 10}}))
		})

		It("returns month totals", func() {
			resp := get("/api/summary/months")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var totals []MonthTotal
			Expect(json.NewDecoder(resp.Body).Decode(&totals)).To(Succeed())
			Expect(totals).To(Equal([]MonthTotal{{Month: "2024-01", Total: 10}}))
		})

		It("returns 500 on failure", func() {
			db.queryErr = errors.New("boom")
			resp := get("/api/summary/months")
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("GET /api/export.csv", func() {
		BeforeEach(seed)

		It("downloads the selected receipts", func() {
			resp := get("/api/export.csv?q=reliance")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/csv"))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("receipts.csv"))
			Expect(body(resp)).To(Equal("vendor,date,amount,category\nReliance,2024-01-10T00:00:00,120.10,Groceries\n"))
		})
	})

	Describe("CORS", func() {
		It("answers preflight requests", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/receipts", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
			setupServer()
		})

		It("rejects requests without credentials", func() {
			resp := get("/api/receipts")
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Receipt Analyzer"))
		})

		It("rejects wrong credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/receipts", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:wrong")))
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("accepts the configured credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/receipts", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("admin", "secret")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})
})
