package plan

// Controlled vocabulary for deterministic intent extraction. Tokens outside
// these sets pass through as plain keywords.

// categoryVocab maps catalog nouns to canonical category tags.
var categoryVocab = map[string]string{
	"laptop": "laptops", "laptops": "laptops", "notebook": "laptops", "ultrabook": "laptops",
	"phone": "phones", "phones": "phones", "smartphone": "phones", "smartphones": "phones",
	"headphone": "headphones", "headphones": "headphones", "earbuds": "headphones", "headset": "headphones",
	"monitor": "monitors", "monitors": "monitors",
	"keyboard": "keyboards", "keyboards": "keyboards",
	"mouse": "mice", "mice": "mice",
	"tablet": "tablets", "tablets": "tablets",
	"camera": "cameras", "cameras": "cameras",
	"speaker": "speakers", "speakers": "speakers",
	"tv": "tvs", "tvs": "tvs", "television": "tvs",
	"watch": "watches", "smartwatch": "watches",
	"desktop": "desktops", "desktops": "desktops",
	"printer": "printers", "printers": "printers",
	"router": "routers", "routers": "routers",
}

// brandVocab lists recognized brand tokens.
var brandVocab = map[string]bool{
	"dell": true, "hp": true, "lenovo": true, "apple": true, "asus": true,
	"acer": true, "samsung": true, "sony": true, "msi": true, "razer": true,
	"logitech": true, "microsoft": true, "bose": true, "lg": true,
	"canon": true, "nikon": true, "jbl": true, "anker": true,
	"corsair": true, "alienware": true, "sennheiser": true, "garmin": true,
	"google": true, "oneplus": true, "xiaomi": true,
}

// stopwords are dropped from the keyword list before embedding.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "i": true, "me": true, "my": true,
	"we": true, "our": true, "you": true, "your": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"for": true, "with": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "on": true, "at": true, "from": true, "by": true,
	"as": true, "that": true, "this": true, "these": true, "those": true,
	"it": true, "its": true, "im": true, "i'm": true,
	"want": true, "wants": true, "need": true, "needs": true,
	"looking": true, "look": true, "find": true, "show": true, "get": true,
	"buy": true, "purchase": true, "recommend": true, "please": true,
	"some": true, "any": true, "really": true, "very": true,
	"can": true, "could": true, "would": true, "should": true,
	"what": true, "whats": true, "which": true, "how": true, "do": true, "does": true,
	"about": true, "one": true, "ones": true, "them": true, "instead": true,
}

// comparatorTokens and unitTokens are consumed by numeric-constraint parsing
// and stripped from keywords.
var comparatorTokens = map[string]bool{
	"under": true, "below": true, "over": true, "above": true,
	"less": true, "more": true, "than": true, "least": true, "most": true,
	"up": true, "between": true, "cheaper": true,
	"compare": true, "vs": true, "vs.": true, "versus": true,
}

var unitTokens = map[string]bool{
	"dollars": true, "dollar": true, "usd": true, "bucks": true,
	"hour": true, "hours": true,
	"lb": true, "lbs": true, "pound": true, "pounds": true,
	"kg": true, "kilograms": true, "kilos": true,
	"inch": true, "inches": true,
	"gb": true, "tb": true,
}

// elisionMarkers signal a follow-up turn that leans on the prior intent.
var elisionMarkers = map[string]bool{
	"cheaper": true, "cheapest": true, "that": true, "those": true,
	"it": true, "them": true, "one": true, "ones": true,
	"instead": true, "similar": true, "same": true, "about": true,
}
