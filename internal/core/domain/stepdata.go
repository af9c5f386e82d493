package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// StepData is the per-step payload variant. Each step carries its own typed
// struct with its own validator; the flow engine treats the payload as opaque
// beyond Step and Validate.
type StepData interface {
	// Step returns the wizard step this payload belongs to.
	Step() StepNumber
	// Validate returns the ordered list of validation errors, empty when the
	// payload satisfies the step's required-field contract.
	Validate() []string
}

// IdentityDocumentData holds the uploaded identity document reference.
type IdentityDocumentData struct {
	DocumentType   string `json:"document_type"`
	DocumentPath   string `json:"document_path"`
	IssuingCountry string `json:"issuing_country,omitempty"`
}

func (IdentityDocumentData) Step() StepNumber { return StepIdentityDocument }

func (d IdentityDocumentData) Validate() []string {
	var errs []string
	if strings.TrimSpace(d.DocumentType) == "" {
		errs = append(errs, "document_type is required")
	}
	if strings.TrimSpace(d.DocumentPath) == "" {
		errs = append(errs, "document_path is required")
	}
	return errs
}

// SelfieData holds the verification selfie reference.
type SelfieData struct {
	ImagePath  string     `json:"image_path"`
	CapturedAt *time.Time `json:"captured_at,omitempty"`
}

func (SelfieData) Step() StepNumber { return StepSelfie }

func (d SelfieData) Validate() []string {
	if strings.TrimSpace(d.ImagePath) == "" {
		return []string{"image_path is required"}
	}
	return nil
}

// BusinessInfoData describes the provider's business identity.
type BusinessInfoData struct {
	BusinessName       string `json:"business_name"`
	RegistrationNumber string `json:"registration_number,omitempty"`
	Address            string `json:"address"`
	Phone              string `json:"phone"`
}

func (BusinessInfoData) Step() StepNumber { return StepBusinessInfo }

func (d BusinessInfoData) Validate() []string {
	var errs []string
	if strings.TrimSpace(d.BusinessName) == "" {
		errs = append(errs, "business_name is required")
	}
	if strings.TrimSpace(d.Address) == "" {
		errs = append(errs, "address is required")
	}
	if strings.TrimSpace(d.Phone) == "" {
		errs = append(errs, "phone is required")
	}
	return errs
}

// CategorySelectionData lists the marketplace categories the provider serves.
type CategorySelectionData struct {
	CategoryIDs []string `json:"category_ids"`
}

func (CategorySelectionData) Step() StepNumber { return StepCategorySelection }

func (d CategorySelectionData) Validate() []string {
	if len(d.CategoryIDs) == 0 {
		return []string{"at least one category is required"}
	}
	return nil
}

// ServiceOffering is a single bookable service.
type ServiceOffering struct {
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	PriceCents      int64  `json:"price_cents"`
	DurationMinutes int    `json:"duration_minutes"`
}

// ServicesData lists the provider's offered services.
type ServicesData struct {
	Services []ServiceOffering `json:"services"`
}

func (ServicesData) Step() StepNumber { return StepServices }

func (d ServicesData) Validate() []string {
	if len(d.Services) == 0 {
		return []string{"at least one service is required"}
	}
	var errs []string
	for i, svc := range d.Services {
		if strings.TrimSpace(svc.Name) == "" {
			errs = append(errs, fmt.Sprintf("services[%d].name is required", i))
		}
		if svc.PriceCents < 0 {
			errs = append(errs, fmt.Sprintf("services[%d].price_cents must not be negative", i))
		}
	}
	return errs
}

// PortfolioItem references one uploaded portfolio asset.
type PortfolioItem struct {
	Path    string `json:"path"`
	Caption string `json:"caption,omitempty"`
}

// PortfolioData lists portfolio assets. An empty portfolio is valid.
type PortfolioData struct {
	Items []PortfolioItem `json:"items"`
}

func (PortfolioData) Step() StepNumber { return StepPortfolio }

func (d PortfolioData) Validate() []string {
	var errs []string
	for i, item := range d.Items {
		if strings.TrimSpace(item.Path) == "" {
			errs = append(errs, fmt.Sprintf("items[%d].path is required", i))
		}
	}
	return errs
}

// BioData is the provider's public profile text.
type BioData struct {
	Headline string `json:"headline"`
	About    string `json:"about"`
}

func (BioData) Step() StepNumber { return StepBio }

func (d BioData) Validate() []string {
	var errs []string
	if strings.TrimSpace(d.Headline) == "" {
		errs = append(errs, "headline is required")
	}
	if strings.TrimSpace(d.About) == "" {
		errs = append(errs, "about is required")
	}
	return errs
}

// TermsData records acceptance of the marketplace terms of service.
type TermsData struct {
	Accepted   bool       `json:"accepted"`
	Version    string     `json:"version"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
}

func (TermsData) Step() StepNumber { return StepTerms }

func (d TermsData) Validate() []string {
	var errs []string
	if !d.Accepted {
		errs = append(errs, "terms must be accepted")
	}
	if strings.TrimSpace(d.Version) == "" {
		errs = append(errs, "version is required")
	}
	return errs
}

// DecodeStepData unmarshals a raw payload into the typed variant for the step.
func DecodeStepData(step StepNumber, raw []byte) (StepData, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var data StepData
	switch step {
	case StepIdentityDocument:
		data = &IdentityDocumentData{}
	case StepSelfie:
		data = &SelfieData{}
	case StepBusinessInfo:
		data = &BusinessInfoData{}
	case StepCategorySelection:
		data = &CategorySelectionData{}
	case StepServices:
		data = &ServicesData{}
	case StepPortfolio:
		data = &PortfolioData{}
	case StepBio:
		data = &BioData{}
	case StepTerms:
		data = &TermsData{}
	default:
		return nil, fmt.Errorf("unknown step number %d", step)
	}

	if err := json.Unmarshal(raw, data); err != nil {
		return nil, fmt.Errorf("decode step %d data: %w", step, err)
	}
	return derefStepData(data), nil
}

// EncodeStepData marshals a typed payload for persistence.
func EncodeStepData(data StepData) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode step %d data: %w", data.Step(), err)
	}
	return raw, nil
}

func derefStepData(data StepData) StepData {
	switch v := data.(type) {
	case *IdentityDocumentData:
		return *v
	case *SelfieData:
		return *v
	case *BusinessInfoData:
		return *v
	case *CategorySelectionData:
		return *v
	case *ServicesData:
		return *v
	case *PortfolioData:
		return *v
	case *BioData:
		return *v
	case *TermsData:
		return *v
	default:
		return data
	}
}
