// Package intent implements the deterministic bilingual keyword classifier.
package intent

import "frontdesk/internal/domain"

// Rule binds an intent to its keyword literals and its static rank.
// Keywords are stored lower-cased.
type Rule struct {
	Intent   domain.Intent
	Keywords []string
	Rank     int
}

// rules is read-only after package init. Declaration order is significant:
// it is the order of MatchedIntents and the tie-break between equal ranks.
var rules = []Rule{
	{
		Intent:   domain.IntentBusinessHours,
		Keywords: []string{"营业时间", "几点开门", "几点关门", "什么时候营业", "open", "close", "hours", "time"},
		Rank:     5,
	},
	{
		Intent:   domain.IntentMenuInquiry,
		Keywords: []string{"菜单", "价格", "多少钱", "有什么菜", "推荐", "menu", "price", "cost", "dish", "recommend"},
		Rank:     5,
	},
	{
		Intent:   domain.IntentReservation,
		Keywords: []string{"预订", "预约", "订位", "订桌", "预定", "reservation", "book", "appointment", "table"},
		Rank:     8,
	},
	{
		Intent:   domain.IntentComplaint,
		Keywords: []string{"投诉", "不满意", "退款", "差评", "问题", "抱怨", "complaint", "refund", "problem", "issue", "bad"},
		Rank:     10,
	},
	{
		Intent:   domain.IntentLocation,
		Keywords: []string{"地址", "在哪里", "怎么去", "位置", "地图", "address", "location", "where", "map", "directions"},
		Rank:     4,
	},
	{
		Intent:   domain.IntentDelivery,
		Keywords: []string{"外卖", "配送", "送货", "送到", "取货", "delivery", "takeout", "pickup", "ship"},
		Rank:     6,
	},
	{
		Intent:   domain.IntentContact,
		Keywords: []string{"电话", "联系方式", "联系", "客服", "phone", "contact", "call", "support"},
		Rank:     3,
	},
	{
		Intent:   domain.IntentPricing,
		Keywords: []string{"价格", "费用", "收费", "多少钱", "price", "cost", "fee", "charge", "how much"},
		Rank:     3,
	},
	{
		Intent:   domain.IntentAvailability,
		Keywords: []string{"有空", "有位置", "能订", "可以", "available", "free", "vacant", "can"},
		Rank:     2,
	},
	{
		Intent:   domain.IntentThanks,
		Keywords: []string{"谢谢", "感谢", "好评", "很好", "thanks", "thank", "good", "great", "awesome"},
		Rank:     1,
	},
}

// Rules returns a copy of the rule table in declaration order.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		kws := make([]string, len(r.Keywords))
		copy(kws, r.Keywords)
		out[i] = Rule{Intent: r.Intent, Keywords: kws, Rank: r.Rank}
	}
	return out
}

// All lists every intent label, general_inquiry last.
func All() []domain.Intent {
	out := make([]domain.Intent, 0, len(rules)+1)
	for _, r := range rules {
		out = append(out, r.Intent)
	}
	return append(out, domain.IntentGeneralInquiry)
}

// Rank returns the static rank of an intent; general_inquiry and unknown labels rank 0.
func Rank(in domain.Intent) int {
	for _, r := range rules {
		if r.Intent == in {
			return r.Rank
		}
	}
	return 0
}
