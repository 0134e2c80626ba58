package reimbursement

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/travel-reimburse/internal/claim"
)

var anyPath = regexp.MustCompile(`^/`)

func uploadBody(filename, category string, data []byte) (*bytes.Buffer, string) {
	var b bytes.Buffer
	writer := multipart.NewWriter(&b)
	part, _ := writer.CreateFormFile("file", filename)
	part.Write(data)
	if category != "" {
		writer.WriteField("category", category)
	}
	writer.Close()
	return &b, writer.FormDataContentType()
}

func decode[T any](resp *http.Response) T {
	defer resp.Body.Close()
	var v T
	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	Expect(json.Unmarshal(body, &v)).To(Succeed())
	return v
}

func do(method, url, body string) *http.Response {
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	Expect(err).NotTo(HaveOccurred())
	resp, err := http.DefaultClient.Do(req)
	Expect(err).NotTo(HaveOccurred())
	return resp
}

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		scanner     *mockScanner
		storage     *mockStorage
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		db = newMockDB()
		scanner = newMockScanner()
		storage = newMockStorage()
		auth = BasicAuth{}
	})

	JustBeforeEach(func() {
		service = newTestService(db, scanner, storage)
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		for _, method := range []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"} {
			ghttpServer.RouteToHandler(method, anyPath, server.ServeHTTP)
		}
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	url := func(path string) string {
		return ghttpServer.URL() + path
	}

	Describe("authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "user", Password: "pass"}
		})

		It("rejects requests without credentials", func() {
			resp, err := http.Get(url("/api/trips"))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		It("accepts valid credentials", func() {
			req, _ := http.NewRequest("GET", url("/api/trips"), nil)
			req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("user:pass")))
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("guards metrics like the api", func() {
			resp, err := http.Get(url("/metrics"))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))

			req, _ := http.NewRequest("GET", url("/metrics"), nil)
			req.SetBasicAuth("user", "pass")
			authed, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer authed.Body.Close()
			Expect(authed.StatusCode).To(Equal(http.StatusOK))
		})

		It("answers preflight requests without credentials", func() {
			resp := do("OPTIONS", url("/api/trips"), "")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("PUT"))
		})
	})

	Describe("trips", func() {
		It("creates and lists trips", func() {
			resp := do("POST", url("/api/trips"), `{"departure_date":"2025-04-20","arrival_date":"2025-04-22","departure_place":"上海","arrival_place":"北京","round_trip":true}`)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			created := decode[TripRecord](resp)
			Expect(created.ID).To(Equal("id-1"))
			Expect(created.Days).To(Equal(3))

			resp = do("GET", url("/api/trips"), "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
			Expect(decode[[]TripRecord](resp)).To(HaveLen(1))
		})

		It("returns an empty array when there are none", func() {
			resp := do("GET", url("/api/trips"), "")
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			Expect(strings.TrimSpace(string(body))).To(Equal("[]"))
		})

		It("rejects malformed bodies", func() {
			resp := do("POST", url("/api/trips"), `{"departure_place":`)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(decode[map[string]string](resp)).To(HaveKeyWithValue("error", "Invalid request body"))
		})

		It("returns 404 for unknown trips", func() {
			resp := do("PUT", url("/api/trips/missing"), `{"departure_place":"上海"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			resp.Body.Close()

			resp = do("DELETE", url("/api/trips/missing"), "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			resp.Body.Close()
		})

		When("listing fails", func() {
			BeforeEach(func() {
				db.listErr = errors.New("service error")
			})

			It("returns a generic 500", func() {
				resp := do("GET", url("/api/trips"), "")
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				Expect(decode[map[string]string](resp)).To(HaveKeyWithValue("error", "Internal server error"))
			})
		})
	})

	Describe("invoices", func() {
		It("uploads an invoice with its hint", func() {
			body, contentType := uploadBody("车票.pdf", "火车票", []byte("%PDF-1.4 fake"))
			resp, err := http.Post(url("/api/invoices"), contentType, body)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			record := decode[InvoiceRecord](resp)
			Expect(record.Category).To(Equal(claim.CategoryTransport))
			Expect(record.ContentType).To(Equal("application/pdf"))
			Expect(scanner.lastHint).To(Equal("火车票"))
		})

		It("rejects a form without a file", func() {
			var b bytes.Buffer
			writer := multipart.NewWriter(&b)
			writer.WriteField("category", "火车票")
			writer.Close()
			resp, err := http.Post(url("/api/invoices"), writer.FormDataContentType(), &b)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(decode[map[string]string](resp)["error"]).To(ContainSubstring("No file"))
		})

		When("extraction fails", func() {
			BeforeEach(func() {
				scanner.scanErr = errors.New("model unavailable")
			})

			It("returns the error and counts the failure", func() {
				body, contentType := uploadBody("车票.jpg", "", []byte("jpeg"))
				resp, err := http.Post(url("/api/invoices"), contentType, body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decode[map[string]string](resp)["error"]).To(ContainSubstring("model unavailable"))

				metrics := do("GET", url("/metrics"), "")
				defer metrics.Body.Close()
				text, _ := io.ReadAll(metrics.Body)
				Expect(string(text)).To(ContainSubstring("reimburse_scan_failures_total 1"))
			})
		})

		It("creates manual invoices", func() {
			resp := do("POST", url("/api/invoices/manual"), `{"fields":{"发票号码":"M1","日期":"2025-04-21","金额":"88"},"category":"餐票"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			Expect(decode[InvoiceRecord](resp).Category).To(Equal(claim.CategoryMeal))
		})

		It("rejects an empty manual invoice", func() {
			resp := do("POST", url("/api/invoices/manual"), `{"fields":{}}`)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})

		Context("with a stored upload", func() {
			JustBeforeEach(func() {
				_, err := service.ProcessInvoice(context.Background(), "车票.pdf", []byte("%PDF"), "application/pdf", "火车票")
				Expect(err).NotTo(HaveOccurred())
			})

			It("serves the file", func() {
				resp := do("GET", url("/api/invoices/id-1/file"), "")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/pdf"))
				data, _ := io.ReadAll(resp.Body)
				Expect(string(data)).To(Equal("%PDF"))
			})

			It("replaces the record on PUT", func() {
				resp := do("PUT", url("/api/invoices/id-1"), `{"category":"transport","invoice_id":"E1","issuance_date":"2025-04-20","amount":"600"}`)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				record := decode[InvoiceRecord](resp)
				Expect(record.InvoiceID).To(Equal("E1"))
				Expect(record.Amount.StringFixed(2)).To(Equal("600.00"))
			})

			It("rejects an unknown category on PUT", func() {
				resp := do("PUT", url("/api/invoices/id-1"), `{"category":"bus"}`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})

			It("deletes the invoice", func() {
				resp := do("DELETE", url("/api/invoices/id-1"), "")
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
				Expect(db.invoices).To(BeEmpty())
			})
		})

		It("returns 404 for a missing file", func() {
			resp := do("GET", url("/api/invoices/missing/file"), "")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("claims", func() {
		JustBeforeEach(func() {
			_, err := service.CreateTrip(claim.Trip{
				DepartureDate:  "2025-04-20",
				ArrivalDate:    "2025-04-20",
				DeparturePlace: "上海",
				ArrivalPlace:   "北京",
				RoundTrip:      true,
			})
			Expect(err).NotTo(HaveOccurred())
			_, err = service.ProcessInvoice(context.Background(), "车票.pdf", []byte("%PDF"), "application/pdf", "火车票")
			Expect(err).NotTo(HaveOccurred())
		})

		It("validates the workspace with an empty body", func() {
			resp := do("POST", url("/api/validate"), "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			result := decode[claim.Validation](resp)
			Expect(result.IsValid).To(BeTrue())
			Expect(result.Warnings).To(HaveLen(1))
		})

		It("generates, fetches, exports and summarizes a claim", func() {
			resp := do("POST", url("/api/claims"), `{"claimant":{"name":"张三"},"confirmed":true}`)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			created := decode[ClaimRecord](resp)
			Expect(created.ID).To(Equal("id-3"))
			Expect(created.Status).To(Equal(claim.StatusWarning))
			Expect(created.Validation.Warnings).To(HaveLen(1))

			resp = do("GET", url("/api/claims/id-3"), "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode[ClaimRecord](resp).TotalAmount.StringFixed(2)).To(Equal("553.00"))

			resp = do("GET", url("/api/claims"), "")
			Expect(decode[[]ClaimRecord](resp)).To(HaveLen(1))

			resp = do("POST", url("/api/claims/id-3/export"), "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode[map[string]any](resp)).To(HaveKey("batch"))

			resp = do("GET", url("/api/claims/id-3/summary.xlsx"), "")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal(xlsxContentType))
			f, err := excelize.OpenReader(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			defer f.Close()
			Expect(f.GetSheetList()).To(ContainElement("费用汇总"))
		})

		It("returns 404 for an unknown claim", func() {
			resp := do("GET", url("/api/claims/missing/summary.xlsx"), "")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	It("serves metrics", func() {
		resp := do("GET", url("/metrics"), "")
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		text, _ := io.ReadAll(resp.Body)
		Expect(string(text)).To(ContainSubstring("reimburse_scan_failures_total"))
	})
})
