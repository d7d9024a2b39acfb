package aggregate

func wordSet(ws ...string) map[string]bool {
	m := make(map[string]bool, len(ws))
	for _, w := range ws {
		m[w] = true
	}
	return m
}

// stopwords is a standard English function-word list (three letters or more).
var stopwords = wordSet(
	"about", "above", "after", "again", "against", "all", "also", "although", "and", "any",
	"are", "aren", "around", "because", "been", "before", "being", "below", "between", "both",
	"but", "can", "cannot", "could", "couldn", "did", "didn", "does", "doesn", "doing",
	"don", "down", "during", "each", "either", "else", "even", "ever", "every", "few",
	"for", "from", "further", "had", "hadn", "has", "hasn", "have", "haven", "having",
	"her", "here", "hers", "herself", "him", "himself", "his", "how", "however", "into",
	"isn", "its", "itself", "just", "let", "many", "may", "might", "mine", "more",
	"most", "much", "must", "mustn", "myself", "neither", "nor", "not", "now", "off",
	"once", "one", "only", "other", "ought", "our", "ours", "ourselves", "out", "over",
	"own", "same", "shall", "she", "should", "shouldn", "since", "some", "such", "than",
	"that", "the", "their", "theirs", "them", "themselves", "then", "there", "these", "they",
	"this", "those", "though", "through", "too", "under", "until", "upon", "very", "was",
	"wasn", "were", "weren", "what", "when", "where", "whether", "which", "while", "who",
	"whom", "whose", "why", "will", "with", "within", "without", "won", "would", "wouldn",
	"yet", "you", "your", "yours", "yourself", "yourselves", "ive", "youre", "theyre",
	"get", "got", "gets", "use", "used", "using", "make", "made", "makes", "still",
	"way", "thing", "things", "lot", "lots", "well", "back", "two", "three", "first",
)

// fillerWords are generic review vocabulary that says nothing about a product.
var fillerWords = wordSet(
	"product", "products", "buy", "bought", "buying", "great", "good", "bad", "love", "loved",
	"like", "liked", "really", "review", "reviews", "recommend", "recommended", "best", "worst",
	"nice", "amazing", "awesome", "terrible", "awful", "excellent", "item", "items", "thanks",
	"star", "stars", "rating", "overall", "definitely", "pretty", "highly",
)
