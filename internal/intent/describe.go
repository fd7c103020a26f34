package intent

import "frontdesk/internal/domain"

// UnknownDescription is returned by Describe for labels outside the rule table.
const UnknownDescription = "未知意图"

var descriptions = map[domain.Intent]string{
	domain.IntentBusinessHours:  "营业时间咨询",
	domain.IntentMenuInquiry:    "菜单和价格咨询",
	domain.IntentReservation:    "预订和预约",
	domain.IntentComplaint:      "投诉和问题反馈",
	domain.IntentLocation:       "地址和位置咨询",
	domain.IntentDelivery:       "外卖和配送咨询",
	domain.IntentContact:        "联系方式咨询",
	domain.IntentPricing:        "价格和费用咨询",
	domain.IntentAvailability:   "可用性咨询",
	domain.IntentThanks:         "感谢和好评",
	domain.IntentGeneralInquiry: "一般咨询",
}

// Describe returns the human-readable label for an intent.
func Describe(in domain.Intent) string {
	if d, ok := descriptions[in]; ok {
		return d
	}
	return UnknownDescription
}
