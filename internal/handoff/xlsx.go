package handoff

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/zombor/travel-reimburse/internal/claim"
)

const (
	summarySheet = "费用汇总"
	detailSheet  = "发票明细"
)

var categoryLabels = map[claim.Category]string{
	claim.CategoryTransport: "交通票据",
	claim.CategoryLodging:   "住宿票据",
	claim.CategoryTaxi:      "打车票",
	claim.CategoryMeal:      "餐票",
	claim.CategoryToll:      "高速通行票",
	claim.CategoryOther:     "其他",
}

// WriteSummary renders a claim as a workbook with a summary sheet (expense
// rows, claimant block, findings) and an invoice detail sheet
func WriteSummary(w io.Writer, c claim.Claim) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}
	if _, err := f.NewSheet(detailSheet); err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating style: %w", err)
	}

	row := 1
	set := func(sheet string, col, r int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, r)
		f.SetCellValue(sheet, cell, v)
	}
	header := func(sheet string, r int, titles ...string) {
		for i, t := range titles {
			set(sheet, i+1, r, t)
		}
		from, _ := excelize.CoordinatesToCellName(1, r)
		to, _ := excelize.CoordinatesToCellName(len(titles), r)
		f.SetCellStyle(sheet, from, to, bold)
	}

	header(summarySheet, row, "费用类别", "发票张数", "小计")
	for _, s := range c.Summary {
		row++
		set(summarySheet, 1, row, s.Category)
		set(summarySheet, 2, row, s.InvoiceCount)
		set(summarySheet, 3, row, s.Subtotal.InexactFloat64())
	}
	last, _ := excelize.CoordinatesToCellName(3, row)
	f.SetCellStyle(summarySheet, fmt.Sprintf("A%d", row), last, bold)

	row += 2
	info := [][2]any{
		{"报销类型", c.ReimbursementTypeCode + " " + c.ReimbursementType},
		{"报销人", c.Claimant.Name},
		{"部门", c.Claimant.Department},
		{"报销事由", c.Claimant.ExpenseReason},
		{"收款人", c.Claimant.Payee},
		{"收款银行名称", c.Claimant.BankName},
		{"银行卡号", c.Claimant.CardNumber},
		{"分摊", yesNo(c.Claimant.Sharing)},
		{"分摊原因", c.Claimant.SharingReason},
		{"住宿超标金额", c.Claimant.LodgingOverage.InexactFloat64()},
		{"市内交通超标金额", c.Claimant.CityTransportOverage.InexactFloat64()},
		{"超标说明", c.Claimant.OverageExplanation},
		{"附件张数", c.AttachmentCount},
		{"状态", string(c.Status)},
	}
	for _, kv := range info {
		set(summarySheet, 1, row, kv[0])
		set(summarySheet, 2, row, kv[1])
		row++
	}
	for _, issue := range c.Validation.Issues {
		set(summarySheet, 1, row, "问题")
		set(summarySheet, 2, row, issue)
		row++
	}
	for _, warning := range c.Validation.Warnings {
		set(summarySheet, 1, row, "提示")
		set(summarySheet, 2, row, warning)
		row++
	}
	f.SetColWidth(summarySheet, "A", "A", 20)
	f.SetColWidth(summarySheet, "B", "C", 40)

	header(detailSheet, 1, "序号", "费用类别", "发票类型", "发票号码", "日期", "金额", "摘要")
	row, n := 1, 0
	for _, s := range c.Summary {
		bucket, ok := c.ExpenseCategories[s.Category]
		if !ok {
			continue
		}
		for _, inv := range bucket.Invoices {
			row++
			n++
			set(detailSheet, 1, row, n)
			set(detailSheet, 2, row, s.Category)
			set(detailSheet, 3, row, categoryLabel(inv.Category))
			set(detailSheet, 4, row, inv.InvoiceID)
			set(detailSheet, 5, row, inv.DisplayDate())
			set(detailSheet, 6, row, inv.Amount.InexactFloat64())
			set(detailSheet, 7, row, describe(inv))
		}
	}
	f.SetColWidth(detailSheet, "B", "G", 18)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func categoryLabel(c claim.Category) string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

func describe(inv claim.Invoice) string {
	switch {
	case inv.Transport != nil:
		return stationCity(inv.Transport.Departure) + " → " + stationCity(inv.Transport.Destination)
	case inv.Lodging != nil:
		return fmt.Sprintf("%s %d晚", inv.Lodging.HotelName, inv.Lodging.Nights)
	case inv.Taxi != nil:
		return inv.Taxi.StartLocation + " → " + inv.Taxi.EndLocation
	default:
		return ""
	}
}

func yesNo(b bool) string {
	if b {
		return "是"
	}
	return "否"
}
