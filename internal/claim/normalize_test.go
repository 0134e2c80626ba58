package claim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("ParseDate", func() {
	DescribeTable("normalizes loose dates",
		func(raw, expected string) {
			Expect(ParseDate(raw)).To(Equal(expected))
		},
		Entry("year/month/day markers", "2025年4月23日", "2025-04-23"),
		Entry("slashes with two digit year", "25/4/3", "2025-04-03"),
		Entry("dashes", "2025-04-23", "2025-04-23"),
		Entry("dots", "2025.4.23", "2025-04-23"),
		Entry("compact", "20250423", "2025-04-23"),
		Entry("trailing time", "2025-04-23 14:30", "2025-04-23"),
		Entry("fewer than three groups", "2025-04", ""),
		Entry("impossible calendar date", "2025-02-30", ""),
		Entry("month out of range", "2025-13-01", ""),
		Entry("empty", "", ""),
		Entry("text", "unknown", ""),
	)
})

var _ = Describe("ParseAmount", func() {
	It("strips currency symbols and grouping", func() {
		amount, ok := ParseAmount("¥1,234.50")
		Expect(ok).To(BeTrue())
		Expect(amount.StringFixed(2)).To(Equal("1234.50"))
	})

	It("rounds to cents", func() {
		amount, ok := ParseAmount("12.345")
		Expect(ok).To(BeTrue())
		Expect(amount.StringFixed(2)).To(Equal("12.35"))
	})

	It("rejects values without digits", func() {
		_, ok := ParseAmount("免费")
		Expect(ok).To(BeFalse())
	})

	It("rejects values with several decimal points", func() {
		_, ok := ParseAmount("1.2.3")
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("Engine", func() {
	var engine *Engine

	BeforeEach(func() {
		engine = NewEngine(nil)
	})

	Describe("ExtractAmount", func() {
		It("returns zero when no candidate field is present", func() {
			Expect(engine.ExtractAmount(map[string]string{"备注": "无"}).IsZero()).To(BeTrue())
		})

		It("takes the first candidate that parses", func() {
			amount := engine.ExtractAmount(map[string]string{
				"金额":  "免费",
				"票价":  "",
				"总金额": "￥56.5",
			})
			Expect(amount.StringFixed(2)).To(Equal("56.50"))
		})

		It("matches labels regardless of case and padding", func() {
			amount := engine.ExtractAmount(map[string]string{" Amount ": "$12.00"})
			Expect(amount.StringFixed(2)).To(Equal("12.00"))
		})
	})

	Describe("ExtractNights", func() {
		It("prefers the explicit nights field", func() {
			Expect(engine.ExtractNights(map[string]string{
				"住宿天数": "2晚",
				"入住日期": "2025-04-20",
				"退房日期": "2025-04-25",
			})).To(Equal(2))
		})

		It("falls back to the check-in and check-out dates", func() {
			Expect(engine.ExtractNights(map[string]string{
				"入住日期": "2025年4月20日",
				"离店日期": "2025年4月23日",
			})).To(Equal(3))
		})

		It("never returns less than one for a same-day stay", func() {
			Expect(engine.ExtractNights(map[string]string{
				"入住日期": "2025-04-20",
				"退房日期": "2025-04-20",
			})).To(Equal(1))
		})

		It("defaults to one", func() {
			Expect(engine.ExtractNights(map[string]string{})).To(Equal(1))
		})
	})

	Describe("ClassifyCategory", func() {
		DescribeTable("applies the cascade",
			func(raw map[string]string, hint string, expected Category) {
				Expect(engine.ClassifyCategory(raw, hint)).To(Equal(expected))
			},
			Entry("a recognised hint wins over field signals",
				map[string]string{"车次": "G2"}, "酒店住宿发票", CategoryLodging),
			Entry("an unknown hint falls through to the rules",
				map[string]string{"车次": "G2"}, "收据", CategoryTransport),
			Entry("origin and destination fields",
				map[string]string{"出发地": "北京", "目的地": "上海"}, "", CategoryTransport),
			Entry("transport keyword in a value",
				map[string]string{"项目": "铁路客票"}, "", CategoryTransport),
			Entry("check-in field",
				map[string]string{"入住日期": "2025-04-20"}, "", CategoryLodging),
			Entry("pickup and plate fields",
				map[string]string{"上车地点": "科技园", "车牌号": "粤B12345"}, "", CategoryTaxi),
			Entry("meal keyword",
				map[string]string{"项目": "餐饮服务"}, "", CategoryMeal),
			Entry("toll keyword",
				map[string]string{"项目": "高速公路通行费"}, "", CategoryToll),
			Entry("embedded invoice type",
				map[string]string{"发票类型": "餐票", "金额": "50"}, "", CategoryMeal),
			Entry("transport wins when lodging signals co-occur",
				map[string]string{"入住日期": "2025-04-20", "车次": "G2"}, "", CategoryTransport),
			Entry("nothing recognisable",
				map[string]string{"金额": "10"}, "", CategoryOther),
		)
	})

	Describe("Normalize", func() {
		var (
			raw  map[string]string
			hint string
			inv  Invoice
		)

		JustBeforeEach(func() {
			inv = engine.Normalize(raw, hint)
		})

		When("given a complete train ticket", func() {
			BeforeEach(func() {
				hint = "火车票"
				raw = map[string]string{
					"发票号码": "25319000000012345678",
					"开票日期": "2025-04-20",
					"出发地":  "上海虹桥站",
					"目的地":  "北京南站",
					"乘车日期": "2025年4月21日",
					"票价":   "¥553.00",
					"乘客姓名": "张三",
					"车次":   "G2",
				}
			})

			It("classifies it as transport", func() {
				Expect(inv.Category).To(Equal(CategoryTransport))
			})

			It("maps the route", func() {
				Expect(inv.Transport).NotTo(BeNil())
				Expect(inv.Transport.Departure).To(Equal("上海虹桥站"))
				Expect(inv.Transport.Destination).To(Equal("北京南站"))
				Expect(inv.Transport.Passenger).To(Equal("张三"))
				Expect(inv.Transport.Mode).To(Equal(ModeTrain))
			})

			It("keeps the ride date apart from the issuance date", func() {
				Expect(inv.IssuanceDate).To(Equal("2025-04-20"))
				Expect(inv.Transport.TravelDate).To(Equal("2025-04-21"))
				Expect(inv.DisplayDate()).To(Equal("2025-04-21"))
			})

			It("parses the amount", func() {
				Expect(inv.Amount.StringFixed(2)).To(Equal("553.00"))
			})

			It("does not ask for manual input", func() {
				Expect(inv.NeedsManualInput).To(BeFalse())
				Expect(inv.MissingFields).To(BeEmpty())
			})

			It("retains the raw fields", func() {
				Expect(inv.RawFields).To(Equal(raw))
			})
		})

		When("given a flight itinerary without a hint", func() {
			BeforeEach(func() {
				hint = ""
				raw = map[string]string{
					"航班号": "MU5101",
					"出发地": "上海浦东国际机场",
					"目的地": "北京首都国际机场",
				}
			})

			It("detects the flight", func() {
				Expect(inv.Category).To(Equal(CategoryTransport))
				Expect(inv.Transport.Mode).To(Equal(ModeFlight))
			})
		})

		When("given a hotel invoice", func() {
			BeforeEach(func() {
				hint = ""
				raw = map[string]string{
					"发票号码":     "H0001",
					"开票日期":     "2025-04-23",
					"销售方名称":    "北京某某酒店有限公司",
					"入住日期":     "2025-04-20",
					"离店日期":     "2025-04-23",
					"价税合计(小写)": "¥900.00",
				}
			})

			It("fills the lodging detail", func() {
				Expect(inv.Category).To(Equal(CategoryLodging))
				Expect(inv.Lodging).NotTo(BeNil())
				Expect(inv.Lodging.HotelName).To(Equal("北京某某酒店有限公司"))
				Expect(inv.Lodging.CheckInDate).To(Equal("2025-04-20"))
				Expect(inv.Lodging.CheckOutDate).To(Equal("2025-04-23"))
				Expect(inv.Lodging.Nights).To(Equal(3))
			})

			It("uses the tax-inclusive total", func() {
				Expect(inv.Amount.StringFixed(2)).To(Equal("900.00"))
			})
		})

		When("given a taxi receipt", func() {
			BeforeEach(func() {
				hint = "打车票"
				raw = map[string]string{
					"上车地点": "北京南站",
					"下车地点": "国贸",
					"车牌号":  "京B12345",
					"金额":   "45.2",
				}
			})

			It("fills the taxi detail", func() {
				Expect(inv.Category).To(Equal(CategoryTaxi))
				Expect(inv.Taxi).To(Equal(&TaxiDetail{
					StartLocation: "北京南站",
					EndLocation:   "国贸",
					PlateNumber:   "京B12345",
				}))
			})
		})

		When("given a meal receipt dated by its consumption date", func() {
			BeforeEach(func() {
				hint = ""
				raw = map[string]string{
					"发票类型": "餐票",
					"发票号码": "123",
					"消费日期": "2025年4月23日",
					"金额":   "88.00",
				}
			})

			It("takes the consumption date as the issuance date", func() {
				Expect(inv.Category).To(Equal(CategoryMeal))
				Expect(inv.IssuanceDate).To(Equal("2025-04-23"))
				Expect(inv.NeedsManualInput).To(BeFalse())
			})
		})

		When("given a toll receipt dated by its passage date", func() {
			BeforeEach(func() {
				hint = "高速通行费"
				raw = map[string]string{
					"入口站":  "上海收费站",
					"出口站":  "杭州收费站",
					"通行日期": "2025-04-23",
					"金额":   "120",
					"发票号码": "T123",
				}
			})

			It("takes the passage date as the issuance date", func() {
				Expect(inv.Category).To(Equal(CategoryToll))
				Expect(inv.IssuanceDate).To(Equal("2025-04-23"))
				Expect(inv.MissingFields).To(BeEmpty())
			})
		})

		When("a ticket carries only its ride date", func() {
			BeforeEach(func() {
				hint = "火车票"
				raw = map[string]string{
					"发票号码": "E1",
					"出发地":  "上海虹桥站",
					"目的地":  "北京南站",
					"乘车日期": "2025-04-21",
					"票价":   "553",
				}
			})

			It("falls back to the ride date", func() {
				Expect(inv.IssuanceDate).To(Equal("2025-04-21"))
				Expect(inv.NeedsManualInput).To(BeFalse())
			})
		})

		When("the extraction is incomplete", func() {
			BeforeEach(func() {
				hint = ""
				raw = map[string]string{
					"车次":   "G2",
					"开票日期": "2025-13-45",
				}
			})

			It("degrades instead of failing", func() {
				Expect(inv.Category).To(Equal(CategoryTransport))
				Expect(inv.Amount.IsZero()).To(BeTrue())
				Expect(inv.IssuanceDate).To(BeEmpty())
			})

			It("flags the record for manual input", func() {
				Expect(inv.NeedsManualInput).To(BeTrue())
				Expect(inv.MissingFields).To(ConsistOf(
					"invoice_id", "issuance_date", "amount", "departure", "destination",
				))
			})
		})

		When("the raw map is nil", func() {
			BeforeEach(func() {
				hint = ""
				raw = nil
			})

			It("returns an empty other invoice", func() {
				Expect(inv.Category).To(Equal(CategoryOther))
				Expect(inv.RawFields).To(BeNil())
				Expect(inv.NeedsManualInput).To(BeTrue())
			})
		})
	})

	Describe("MissingFields", func() {
		var inv Invoice

		BeforeEach(func() {
			inv = Invoice{
				Category:     CategoryTransport,
				InvoiceID:    "E1",
				IssuanceDate: "2025-04-21",
				Amount:       decimal.RequireFromString("553"),
				Transport:    &TransportDetail{Departure: "上海", Destination: "北京"},
			}
		})

		It("is empty for a complete invoice", func() {
			Expect(engine.MissingFields(inv)).To(BeEmpty())
		})

		It("reports blank and non-positive fields in order", func() {
			inv.InvoiceID = "  "
			inv.Amount = decimal.Zero
			inv.Transport.Destination = ""
			Expect(engine.MissingFields(inv)).To(Equal([]string{"invoice_id", "amount", "destination"}))
		})

		It("reports every detail field when the detail block is absent", func() {
			inv.Category = CategoryLodging
			inv.Transport = nil
			Expect(engine.MissingFields(inv)).To(Equal([]string{"hotel_name", "check_in_date", "check_out_date"}))
		})

		It("only requires the common fields for a meal", func() {
			inv.Category = CategoryMeal
			inv.Transport = nil
			Expect(engine.MissingFields(inv)).To(BeEmpty())
		})
	})
})
