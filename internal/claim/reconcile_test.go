package claim

import (
	"github.com/shopspring/decimal"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func ticket(from, to, date string) Invoice {
	return Invoice{
		Category:     CategoryTransport,
		InvoiceID:    "T-" + from + "-" + to,
		IssuanceDate: date,
		Amount:       decimal.RequireFromString("553.00"),
		Transport: &TransportDetail{
			Departure:   from,
			Destination: to,
			TravelDate:  date,
			Mode:        ModeTrain,
		},
	}
}

func stay(checkIn, checkOut string, nights int) Invoice {
	return Invoice{
		Category:     CategoryLodging,
		InvoiceID:    "H-" + checkIn,
		IssuanceDate: checkOut,
		Amount:       decimal.RequireFromString("450.00"),
		Lodging: &LodgingDetail{
			HotelName:    "北京某某酒店",
			CheckInDate:  checkIn,
			CheckOutDate: checkOut,
			Nights:       nights,
		},
	}
}

var _ = Describe("Reconciliation", func() {
	var engine *Engine

	BeforeEach(func() {
		engine = NewEngine(nil)
	})

	Describe("PlaceMatch", func() {
		DescribeTable("matches stations to cities",
			func(station, city string, expected bool) {
				Expect(engine.PlaceMatch(station, city)).To(Equal(expected))
			},
			Entry("city inside station", "上海虹桥站", "上海", true),
			Entry("romanised airport name", "T2 International Airport Shenzhen", "深圳", true),
			Entry("short names need containment", "广州", "广东", false),
			Entry("short names need containment even for stations", "广州南站", "广东", false),
			Entry("case and space insensitive", "Beijing  South", "BEIJING", true),
			Entry("alias nickname", "虹桥T2航站楼", "上海", true),
			Entry("city plus station suffix", "广州南站", "广州", true),
			Entry("station of a city with an administrative suffix", "乌鲁木齐站", "乌鲁木齐市", true),
			Entry("city station is not a district station", "上海站", "上海虹桥", false),
			Entry("partial name across a station suffix", "海南站", "上海南", false),
			Entry("truncated city name", "木齐站", "乌鲁木齐", false),
			Entry("truncated three character city", "家庄站", "石家庄", false),
			Entry("administrative suffix stripped", "哈尔滨西客站", "哈尔滨市", true),
			Entry("characters spread across the station", "呼和-浩特", "呼和浩特", true),
			Entry("too little overlap", "长春站", "长沙市", false),
			Entry("empty station", "", "上海", false),
			Entry("empty city", "上海虹桥站", "", false),
		)
	})

	Describe("Validate", func() {
		var (
			trips    []Trip
			invoices []Invoice
			result   Validation
		)

		JustBeforeEach(func() {
			result = engine.Validate(trips, invoices)
		})

		When("there is nothing to check", func() {
			BeforeEach(func() {
				trips = nil
				invoices = nil
			})

			It("is valid with empty, non-nil findings", func() {
				Expect(result.IsValid).To(BeTrue())
				Expect(result.Issues).NotTo(BeNil())
				Expect(result.Issues).To(BeEmpty())
				Expect(result.Warnings).NotTo(BeNil())
				Expect(result.Warnings).To(BeEmpty())
			})
		})

		When("a one-way trip has its ticket", func() {
			BeforeEach(func() {
				trips = []Trip{NewTrip(Trip{
					DepartureDate:  "2025-04-21",
					ArrivalDate:    "2025-04-21",
					DeparturePlace: "上海",
					ArrivalPlace:   "北京",
				})}
				invoices = []Invoice{ticket("上海虹桥站", "北京南站", "2025-04-21")}
			})

			It("produces no warnings", func() {
				Expect(result.IsValid).To(BeTrue())
				Expect(result.Warnings).To(BeEmpty())
			})
		})

		When("a round trip only has the outbound ticket", func() {
			BeforeEach(func() {
				trips = []Trip{NewTrip(Trip{
					DepartureDate:  "2025-04-21",
					ArrivalDate:    "2025-04-21",
					DeparturePlace: "上海",
					ArrivalPlace:   "北京",
					RoundTrip:      true,
				})}
				invoices = []Invoice{ticket("上海虹桥站", "北京南站", "2025-04-21")}
			})

			It("warns exactly once about the return leg", func() {
				Expect(result.Warnings).To(HaveLen(1))
				Expect(result.Warnings[0]).To(ContainSubstring("return"))
				Expect(result.Warnings[0]).To(ContainSubstring("from 北京 to 上海"))
			})

			It("stays valid", func() {
				Expect(result.IsValid).To(BeTrue())
			})
		})

		When("a three day trip needs two nights of lodging", func() {
			BeforeEach(func() {
				trips = []Trip{NewTrip(Trip{
					DepartureDate:  "2025-04-20",
					ArrivalDate:    "2025-04-22",
					DeparturePlace: "上海",
					ArrivalPlace:   "北京",
				})}
				invoices = []Invoice{ticket("上海虹桥站", "北京南站", "2025-04-20")}
			})

			It("derives the trip length", func() {
				Expect(trips[0].Days).To(Equal(3))
			})

			Context("and the stay covers both nights", func() {
				BeforeEach(func() {
					invoices = append(invoices, stay("2025-04-20", "2025-04-22", 2))
				})

				It("produces no coverage warning", func() {
					Expect(result.Warnings).To(BeEmpty())
				})
			})

			Context("and the stay covers a single night", func() {
				BeforeEach(func() {
					invoices = append(invoices, stay("2025-04-20", "2025-04-21", 1))
				})

				It("warns exactly once naming the shortfall", func() {
					Expect(result.Warnings).To(HaveLen(1))
					Expect(result.Warnings[0]).To(ContainSubstring("1 of 2 nights"))
				})
			})

			Context("and the only stay is outside the trip", func() {
				BeforeEach(func() {
					invoices = append(invoices, stay("2025-05-01", "2025-05-03", 2))
				})

				It("does not count it", func() {
					Expect(result.Warnings).To(HaveLen(1))
					Expect(result.Warnings[0]).To(ContainSubstring("0 of 2 nights"))
				})
			})
		})

		When("a trip is missing a place", func() {
			BeforeEach(func() {
				trips = []Trip{
					NewTrip(Trip{DepartureDate: "2025-04-20", ArrivalDate: "2025-04-20", DeparturePlace: "上海"}),
					NewTrip(Trip{DepartureDate: "2025-04-20", ArrivalDate: "2025-04-20", DeparturePlace: "上海", ArrivalPlace: "杭州"}),
				}
				invoices = nil
			})

			It("reports an issue for that trip only", func() {
				Expect(result.IsValid).To(BeFalse())
				Expect(result.Issues).To(HaveLen(1))
				Expect(result.Issues[0]).To(ContainSubstring("trip #1"))
			})

			It("still checks the other trips", func() {
				Expect(result.Warnings).To(HaveLen(1))
				Expect(result.Warnings[0]).To(ContainSubstring("trip #2"))
			})
		})
	})
})
