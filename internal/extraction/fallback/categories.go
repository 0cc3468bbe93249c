package fallback

import (
	"strings"

	"github.com/aman-ankur/labextract/pkg/types/biomarker"
)

// categoryByName maps common biomarker names to their panel. The gateway
// path gets categories from the model; the fallback only knows what this
// table knows. Unlisted names stay uncategorized.
var categoryByName = map[string]biomarker.Category{
	"glucose":           biomarker.CategoryMetabolic,
	"fasting glucose":   biomarker.CategoryMetabolic,
	"random glucose":    biomarker.CategoryMetabolic,
	"hba1c":             biomarker.CategoryMetabolic,
	"insulin":           biomarker.CategoryMetabolic,
	"total cholesterol": biomarker.CategoryLipid,
	"cholesterol":       biomarker.CategoryLipid,
	"hdl":               biomarker.CategoryLipid,
	"hdl cholesterol":   biomarker.CategoryLipid,
	"ldl":               biomarker.CategoryLipid,
	"ldl cholesterol":   biomarker.CategoryLipid,
	"vldl":              biomarker.CategoryLipid,
	"triglycerides":     biomarker.CategoryLipid,
	"tsh":               biomarker.CategoryThyroid,
	"t3":                biomarker.CategoryThyroid,
	"t4":                biomarker.CategoryThyroid,
	"free t3":           biomarker.CategoryThyroid,
	"free t4":           biomarker.CategoryThyroid,
	"hemoglobin":        biomarker.CategoryHematology,
	"wbc":               biomarker.CategoryHematology,
	"wbc count":         biomarker.CategoryHematology,
	"rbc":               biomarker.CategoryHematology,
	"rbc count":         biomarker.CategoryHematology,
	"platelet count":    biomarker.CategoryHematology,
	"hematocrit":        biomarker.CategoryHematology,
	"esr":               biomarker.CategoryHematology,
	"mcv":               biomarker.CategoryHematology,
	"mch":               biomarker.CategoryHematology,
	"mchc":              biomarker.CategoryHematology,
	"alt":               biomarker.CategoryLiver,
	"sgpt":              biomarker.CategoryLiver,
	"ast":               biomarker.CategoryLiver,
	"sgot":              biomarker.CategoryLiver,
	"alp":               biomarker.CategoryLiver,
	"ggt":               biomarker.CategoryLiver,
	"total bilirubin":   biomarker.CategoryLiver,
	"direct bilirubin":  biomarker.CategoryLiver,
	"albumin":           biomarker.CategoryLiver,
	"total protein":     biomarker.CategoryLiver,
	"creatinine":        biomarker.CategoryKidney,
	"urea":              biomarker.CategoryKidney,
	"bun":               biomarker.CategoryKidney,
	"uric acid":         biomarker.CategoryKidney,
	"vitamin d":         biomarker.CategoryVitamin,
	"vitamin b12":       biomarker.CategoryVitamin,
	"folate":            biomarker.CategoryVitamin,
	"ferritin":          biomarker.CategoryVitamin,
	"testosterone":      biomarker.CategoryHormone,
	"estradiol":         biomarker.CategoryHormone,
	"cortisol":          biomarker.CategoryHormone,
	"prolactin":         biomarker.CategoryHormone,
	"crp":               biomarker.CategoryImmunology,
	"rheumatoid factor": biomarker.CategoryImmunology,
}

func categoryFor(name string) biomarker.Category {
	normalized := strings.Join(strings.Fields(strings.ToLower(name)), " ")
	return categoryByName[normalized]
}
