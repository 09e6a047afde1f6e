package findings

import "strings"

// Category is a vulnerability class.
type Category string

const (
	CategoryInjection       Category = "injection"
	CategoryAuth            Category = "auth"
	CategoryCrypto          Category = "crypto"
	CategoryDataExposure    Category = "data-exposure"
	CategoryInputValidation Category = "input-validation"
	CategoryBusinessLogic   Category = "business-logic"
	CategoryConfig          Category = "config"
	CategorySupplyChain     Category = "supply-chain"
	CategoryCodeExecution   Category = "code-execution"
	CategoryXSS             Category = "xss"
	CategoryOther           Category = "other"

	// Classes the model reports that default hard rules exclude or narrow.
	CategoryDenialOfService    Category = "denial-of-service"
	CategoryRateLimiting       Category = "rate-limiting"
	CategoryResourceExhaustion Category = "resource-exhaustion"
	CategoryMemorySafety       Category = "memory-safety"
	CategorySSRF               Category = "ssrf"
)

var knownCategories = map[Category]struct{}{
	CategoryInjection: {}, CategoryAuth: {}, CategoryCrypto: {}, CategoryDataExposure: {},
	CategoryInputValidation: {}, CategoryBusinessLogic: {}, CategoryConfig: {},
	CategorySupplyChain: {}, CategoryCodeExecution: {}, CategoryXSS: {}, CategoryOther: {},
	CategoryDenialOfService: {}, CategoryRateLimiting: {}, CategoryResourceExhaustion: {},
	CategoryMemorySafety: {}, CategorySSRF: {},
}

// categoryAliases maps labels models commonly emit onto the taxonomy.
// Keys are lowercase with '_' and ' ' folded to '-'.
var categoryAliases = map[string]Category{
	"sql-injection":        CategoryInjection,
	"sqli":                 CategoryInjection,
	"command-injection":    CategoryInjection,
	"os-command-injection": CategoryInjection,
	"ldap-injection":       CategoryInjection,
	"nosql-injection":      CategoryInjection,
	"xxe":                  CategoryInjection,
	"template-injection":   CategoryInjection,
	"ssti":                 CategoryInjection,
	"header-injection":     CategoryInjection,

	"authentication":        CategoryAuth,
	"authorization":         CategoryAuth,
	"auth-bypass":           CategoryAuth,
	"access-control":        CategoryAuth,
	"broken-access-control": CategoryAuth,
	"idor":                  CategoryAuth,
	"privilege-escalation":  CategoryAuth,
	"session-management":    CategoryAuth,

	"cryptography":        CategoryCrypto,
	"weak-crypto":         CategoryCrypto,
	"insecure-randomness": CategoryCrypto,

	"information-disclosure":  CategoryDataExposure,
	"sensitive-data-exposure": CategoryDataExposure,
	"hardcoded-secret":        CategoryDataExposure,
	"hardcoded-credentials":   CategoryDataExposure,
	"secrets":                 CategoryDataExposure,
	"pii":                     CategoryDataExposure,
	"data-leak":               CategoryDataExposure,

	"validation":          CategoryInputValidation,
	"path-traversal":      CategoryInputValidation,
	"directory-traversal": CategoryInputValidation,
	"open-redirect":       CategoryInputValidation,

	"logic":          CategoryBusinessLogic,
	"race-condition": CategoryBusinessLogic,
	"toctou":         CategoryBusinessLogic,

	"configuration":          CategoryConfig,
	"misconfiguration":       CategoryConfig,
	"insecure-configuration": CategoryConfig,
	"cors":                   CategoryConfig,

	"dependency":            CategorySupplyChain,
	"vulnerable-dependency": CategorySupplyChain,

	"rce":                      CategoryCodeExecution,
	"remote-code-execution":    CategoryCodeExecution,
	"deserialization":          CategoryCodeExecution,
	"insecure-deserialization": CategoryCodeExecution,
	"eval-injection":           CategoryCodeExecution,

	"cross-site-scripting": CategoryXSS,

	"dos":   CategoryDenialOfService,
	"ddos":  CategoryDenialOfService,
	"redos": CategoryDenialOfService,

	"rate-limit":            CategoryRateLimiting,
	"missing-rate-limiting": CategoryRateLimiting,

	"resource-leak":     CategoryResourceExhaustion,
	"memory-exhaustion": CategoryResourceExhaustion,

	"buffer-overflow":          CategoryMemorySafety,
	"use-after-free":           CategoryMemorySafety,
	"memory-corruption":        CategoryMemorySafety,
	"out-of-bounds":            CategoryMemorySafety,
	"null-pointer-dereference": CategoryMemorySafety,

	"server-side-request-forgery": CategorySSRF,
}

// KnownCategory reports whether c belongs to the taxonomy.
func KnownCategory(c Category) bool {
	_, ok := knownCategories[c]
	return ok
}

// KnownCategories returns the taxonomy in a fixed order.
func KnownCategories() []Category {
	return []Category{
		CategoryInjection, CategoryAuth, CategoryCrypto, CategoryDataExposure,
		CategoryInputValidation, CategoryBusinessLogic, CategoryConfig, CategorySupplyChain,
		CategoryCodeExecution, CategoryXSS, CategoryOther,
		CategoryDenialOfService, CategoryRateLimiting, CategoryResourceExhaustion,
		CategoryMemorySafety, CategorySSRF,
	}
}

// NormalizeCategory maps a free-form label onto the taxonomy. Unknown labels become other.
func NormalizeCategory(label string) Category {
	key := strings.ToLower(strings.TrimSpace(label))
	key = strings.NewReplacer("_", "-", " ", "-").Replace(key)
	if key == "" {
		return ""
	}
	if c := Category(key); KnownCategory(c) {
		return c
	}
	if c, ok := categoryAliases[key]; ok {
		return c
	}
	return CategoryOther
}
