package policy

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/agentstation/policytool/pkg/errors"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.Split(field.Tag.Get("json"), ",")[0]
			if name == "-" {
				return ""
			}
			return name
		})
		validate.RegisterStructValidation(accessItemsRequired, Policy{})
	})
	return validate
}

// accessItemsRequired rejects access policies that grant and deny nothing.
func accessItemsRequired(sl validator.StructLevel) {
	p := sl.Current().Interface().(Policy)
	if p.Type() == TypeAccess && len(p.PolicyItems) == 0 && len(p.DenyPolicyItems) == 0 {
		sl.ReportError(p.PolicyItems, "policyItems", "PolicyItems", "items", "")
	}
}

// fieldOrder decides which violation is reported first.
var fieldOrder = []string{"name", "policyType", "resources", "policyItems"}

// Validate checks the structural rules every policy must satisfy before
// templating: a name, a policyType of 0, 1 or 2, at least one resource,
// and for access policies at least one allow or deny item.
func Validate(p Policy) error {
	err := getValidator().Struct(p)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.NewValidationError("policy", p.Name, err.Error())
	}

	byField := make(map[string]validator.FieldError, len(verrs))
	for _, fe := range verrs {
		if _, seen := byField[fe.Field()]; !seen {
			byField[fe.Field()] = fe
		}
	}
	for _, field := range fieldOrder {
		if fe, ok := byField[field]; ok {
			return errors.NewValidationError(field, fe.Value(), message(p, fe))
		}
	}
	return errors.NewValidationError(verrs[0].Field(), verrs[0].Value(), verrs[0].Error())
}

func message(p Policy, fe validator.FieldError) string {
	switch fe.Field() {
	case "name":
		return "policy is missing attribute name"
	case "policyType":
		if fe.Tag() == "required" {
			return fmt.Sprintf("policy %s does not have policyType", p.Name)
		}
		return fmt.Sprintf("policy %s must have policyType 0, 1 or 2", p.Name)
	case "resources":
		return fmt.Sprintf("policy %s does not have resources", p.Name)
	case "policyItems":
		return fmt.Sprintf("policy %s has neither policyItems nor denyPolicyItems", p.Name)
	}
	return fe.Error()
}

// Resource types recognised by ResourceType.
const (
	ResourceDatabase = "database"
	ResourceTag      = "tag"
	ResourcePath     = "path"
	ResourceUnknown  = "unknown"
)

// ResourceType classifies an access policy by its resources for hive to
// hdfs expansion. Only access policies can be expanded.
func ResourceType(p Policy) (string, error) {
	if p.Type() != TypeAccess {
		return "", errors.NewValidationError("policyType", p.Type(),
			fmt.Sprintf("policyType must be 0 to support option expandHiveResourceToHdfs, policy %s", p.Name))
	}
	for _, kind := range []string{ResourceDatabase, ResourceTag, ResourcePath} {
		if _, ok := p.Resources[kind]; ok {
			return kind, nil
		}
	}
	return ResourceUnknown, nil
}
