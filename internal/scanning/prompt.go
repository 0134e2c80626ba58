package scanning

import (
	"fmt"
	"strings"
)

// invoiceScanPrompt is shared by every model backend. Field names are the
// labels printed on Chinese e-invoices; the claim rules resolve their synonyms.
const invoiceScanPrompt = `提取图片中的发票信息，以JSON对象返回，键为发票上的字段名，值为字符串。
如果是交通票据（火车票、机票、汽车票），提取[乘客姓名,发票号码,起始站,到站,票价,乘坐日期,电子客票号,开车时间,车次,航班号,座号,日期,金额,销售方名称]。
如果是住宿发票，提取[酒店名称,销售方名称,入住日期,退房日期,住宿天数,发票号码,房间号,日期,金额,价税合计(小写),税率/征收率,住宿人姓名,住宿地址]。
如果是餐饮发票，提取[商家名称,销售方名称,消费日期,消费项目,金额,发票号码,就餐人数,消费地址]。
如果是打车票，提取[上车地点,下车地点,上车时间,下车时间,里程,金额,发票号码,车牌号,出租车公司]。
如果是高速通行费发票，提取[入口站,出口站,通行日期,金额,发票号码]。

另外增加字段"发票类型"，取值为交通票据、住宿票据、打车票、餐票、高速通行票或其他票据之一。
日期保持票面写法，金额只保留数字和小数点。
看不清或不存在的字段不要填写，也不要把其他字段的内容填进去。
只返回JSON，不要有任何其他文字说明。`

// extractionPrompt returns the prompt for one call, naming the invoice kind
// when the uploader supplied it
func extractionPrompt(hint string) string {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return invoiceScanPrompt
	}
	return fmt.Sprintf("这是一张%s。\n%s", hint, invoiceScanPrompt)
}
