package safety

import (
	"context"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/okenna/parentcare/pkg/logging"
)

var classifierTracer = otel.Tracer("parentcare/safety")

// Category is the safety category assigned to an inbound question.
type Category string

const (
	CategorySafe    Category = "safe"
	CategoryCrisis  Category = "crisis"
	CategoryMedical Category = "medical"
	CategoryLegal   Category = "legal"
	CategoryTherapy Category = "therapy"
	CategoryPII     Category = "pii"
)

// categoryOrder is the fixed evaluation priority. Crisis is checked first
// because a missed crisis indicator is the highest-consequence failure. PII
// is last among the non-safe categories so that a privacy disclosure inside
// an otherwise benign message still escalates.
var categoryOrder = []Category{
	CategoryCrisis,
	CategoryMedical,
	CategoryLegal,
	CategoryTherapy,
	CategoryPII,
}

// Result is the outcome of classifying one message. Refusal is set iff the
// category is not safe.
type Result struct {
	Category Category `json:"category"`
	Refusal  *Refusal `json:"refusal,omitempty"`
}

type indicator struct {
	re     *regexp.Regexp
	reason string
}

var crisisIndicators = []indicator{
	{regexp.MustCompile(`(?i)\b(hurt|harm|kill)(ing)?\s+(myself|my\s*self|themselves|himself|herself)\b`), "self_harm"},
	{regexp.MustCompile(`(?i)\b(suicide|suicidal|self[\s-]?harm)\b`), "suicide"},
	{regexp.MustCompile(`(?i)\bend(ing)?\s+(my|it)\s+(life|all)\b`), "end_life"},
	{regexp.MustCompile(`(?i)\b(want|wish)(ed)?\s+to\s+(die|disappear|not\s+wake\s+up)\b`), "want_to_die"},
	{regexp.MustCompile(`(?i)\b(hurt|harm|shake|shaking)(ing)?\s+(my|the)\s+(baby|child|kid|toddler|infant)\b`), "harm_child"},
	{regexp.MustCompile(`(?i)\b(overdose|od'?d?)\b`), "overdose"},
	{regexp.MustCompile(`(?i)\bcan'?t\s+go\s+on\b`), "cant_go_on"},
}

var medicalIndicators = []indicator{
	{regexp.MustCompile(`(?i)\b(fever|rash|vomit(ing)?|diarrhea|seizure|concussion|dehydrat\w*|jaundice)\b`), "symptom"},
	{regexp.MustCompile(`(?i)\b(medicat\w*|dosage|dose|antibiotic\w*|ibuprofen|tylenol|acetaminophen|prescription)\b`), "medication"},
	{regexp.MustCompile(`(?i)\b(diagnos\w*|symptom\w*|infection|allerg\w*|asthma|autism\s+screening)\b`), "diagnosis"},
	{regexp.MustCompile(`(?i)\b(vaccine|vaccinat\w*|immuniz\w*)\b`), "vaccine"},
	{regexp.MustCompile(`(?i)\b(emergency\s+room|\bER\b|urgent\s+care|pediatrician\s+said)\b`), "clinical_setting"},
	{regexp.MustCompile(`(?i)\b(swallow(ed)?|choking|choke[sd]?)\b.*\b(battery|coin|magnet|pill|object)\b`), "ingestion"},
}

var legalIndicators = []indicator{
	{regexp.MustCompile(`(?i)\b(custody|visitation|guardianship)\b`), "custody"},
	{regexp.MustCompile(`(?i)\b(lawyer|attorney|lawsuit|sue|suing|court\s+order|subpoena)\b`), "legal_process"},
	{regexp.MustCompile(`(?i)\b(divorce|separation\s+agreement|child\s+support|alimony)\b`), "family_law"},
	{regexp.MustCompile(`(?i)\b(CPS|child\s+protective\s+services|social\s+services\s+case)\b`), "cps"},
	{regexp.MustCompile(`(?i)\brestraining\s+order\b`), "restraining_order"},
}

var therapyIndicators = []indicator{
	{regexp.MustCompile(`(?i)\b(depress(ed|ion|ing)?|hopeless|worthless)\b`), "depression"},
	{regexp.MustCompile(`(?i)\b(anxiety|anxious|panic\s+attack\w*)\b`), "anxiety"},
	{regexp.MustCompile(`(?i)\b(therap(y|ist)|counsel(ing|or)|psychiatr\w*|psycholog\w*)\b`), "treatment"},
	{regexp.MustCompile(`(?i)\b(postpartum|post-partum)\b`), "postpartum"},
	{regexp.MustCompile(`(?i)\b(trauma(tized)?|ptsd|grief|grieving)\b`), "trauma"},
}

// PII shapes: ID-like digit runs, phone numbers, email addresses, street
// addresses, and introduced full names.
var piiIndicators = []indicator{
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "ssn_shape"},
	{regexp.MustCompile(`\b\d{9,}\b`), "id_digits"},
	{regexp.MustCompile(`\(?\d{3}\)?[\s.-]\d{3}[\s.-]\d{4}\b`), "phone_shape"},
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "email"},
	{regexp.MustCompile(`(?i)\b\d+\s+[A-Za-z]+\s+(street|st|avenue|ave|road|rd|drive|dr|lane|ln|boulevard|blvd|court|ct|way|place|pl)\b\.?`), "street_address"},
	{regexp.MustCompile(`(?i)\b(my|his|her|their)\s+name\s+is\s+[A-Z][a-z]+\s+[A-Z][a-z]+\b`), "introduced_name"},
	{regexp.MustCompile(`\b(?:I'?m|I\s+am)\s+[A-Z][a-z]+\s+[A-Z][a-z]+\b`), "introduced_name"},
}

var indicatorSets = map[Category][]indicator{
	CategoryCrisis:  crisisIndicators,
	CategoryMedical: medicalIndicators,
	CategoryLegal:   legalIndicators,
	CategoryTherapy: therapyIndicators,
	CategoryPII:     piiIndicators,
}

// Classifier assigns safety categories to inbound questions. It is
// deterministic and side-effect-free; refusal wording comes from data, not
// code, so copy edits never require a rebuild.
type Classifier struct {
	refusals map[Category]Refusal
	logger   *logging.Logger
}

// NewClassifier builds a classifier with the provided refusal payloads.
// Missing categories fall back to the embedded defaults.
func NewClassifier(refusals map[Category]Refusal, logger *logging.Logger) *Classifier {
	if logger == nil {
		logger = logging.Default()
	}
	merged := DefaultRefusals()
	for cat, r := range refusals {
		merged[cat] = r
	}
	return &Classifier{refusals: merged, logger: logger}
}

// Classify evaluates the indicator sets in fixed priority order and returns
// the first matching category, or safe. A malfunction fails closed: any
// panic during matching is recovered and reported as a crisis classification
// so the message is escalated rather than silently treated as safe.
func (c *Classifier) Classify(text string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("classifier malfunction, failing closed", "panic", r)
			res = c.resultFor(CategoryCrisis)
		}
	}()

	_, span := classifierTracer.Start(context.Background(), "safety.classify")
	defer span.End()

	if strings.TrimSpace(text) == "" {
		span.SetAttributes(attribute.String("safety.category", string(CategorySafe)))
		return Result{Category: CategorySafe}
	}

	for _, cat := range categoryOrder {
		for _, ind := range indicatorSets[cat] {
			if ind.re.MatchString(text) {
				span.SetAttributes(
					attribute.String("safety.category", string(cat)),
					attribute.String("safety.reason", ind.reason),
				)
				c.logger.Debug("message classified", "category", cat, "reason", ind.reason)
				return c.resultFor(cat)
			}
		}
	}

	span.SetAttributes(attribute.String("safety.category", string(CategorySafe)))
	return Result{Category: CategorySafe}
}

func (c *Classifier) resultFor(cat Category) Result {
	refusal := c.refusals[cat]
	return Result{Category: cat, Refusal: &refusal}
}
