// Package validator performs the structural checks a unit's self-declared
// metadata must pass before its symbols may register. Validation is pure:
// no I/O, no subprocesses, no clock. Findings are data on the report;
// adversarial input produces a failed report, never a panic.
package validator

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/mitchellh/mapstructure"
	schemavalidate "github.com/santhosh-tekuri/jsonschema/v5"

	captypes "github.com/ld-agent/ld-agent-go/pkg/types/capability"
)

// Finding codes, stable across releases so callers can match on them.
const (
	CodeMissingBlock     = "missing_block"
	CodeInvalidType      = "invalid_type"
	CodeMissingField     = "missing_field"
	CodeInvalidVersion   = "invalid_version"
	CodeUnknownPlatform  = "unknown_platform"
	CodeInvalidRuntime   = "invalid_runtime_constraint"
	CodeInvalidEnvVar    = "invalid_env_var"
	CodeNoExports        = "no_exports"
	CodeEmptyExports     = "empty_exports"
	CodeNonstandardCat   = "nonstandard_category"
	CodeMissingName      = "missing_name"
	CodeMissingDoc       = "missing_description"
	CodeMissingParamDoc  = "missing_param_description"
	CodeMissingReturns   = "missing_returns"
	CodeInvalidParam     = "invalid_parameter"
	CodeInvalidSchema    = "invalid_input_schema"
	CodeInvalidInit      = "invalid_init_function"
	CodeMissingModuleDoc = "missing_module_doc"
)

// requiredInfoFields are checked in this order so reports are stable.
var requiredInfoFields = []string{
	"name", "description", "author", "version", "platform", "runtime_requires",
}

// Result carries everything one validation run learned: the findings plus
// best-effort typed decodes. The env var and dependency decodes survive a
// failed report so the aggregators can still reconcile the unit's
// declarations.
type Result struct {
	Report       *captypes.ValidationReport
	Info         *captypes.ModuleInfo
	Exports      map[string][]captypes.SymbolDecl
	InitFunction string
	EnvVars      map[string]captypes.EnvVarSchema
	Dependencies []string
}

// Validate checks the raw declarations a unit emitted from describe.
// Calling it twice with the same input yields byte-identical reports.
func Validate(raw *captypes.RawDeclarations) *Result {
	res := &Result{
		Report:  &captypes.ValidationReport{},
		Exports: map[string][]captypes.SymbolDecl{},
		EnvVars: map[string]captypes.EnvVarSchema{},
	}

	infoMap := decodeBlock(res.Report, raw.ModuleInfo, "module_info")
	validateInfo(res, infoMap)

	exportsMap := decodeExports(res.Report, raw.Exports)
	validateExports(res, exportsMap)

	if raw.Doc == "" && !raw.HasDocFile {
		res.Report.AddWarning(CodeMissingModuleDoc, "unit provides no module documentation", "doc")
	} else {
		res.Report.AddPass("module documented")
	}

	return res
}

// decodeBlock unwraps one of the two top-level declaration blocks into a
// generic map, recording a finding when it is missing or mis-shaped.
func decodeBlock(report *captypes.ValidationReport, block json.RawMessage, path string) map[string]any {
	if len(block) == 0 || string(block) == "null" {
		report.AddError(CodeMissingBlock, fmt.Sprintf("%s declaration is missing", path), path)
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(block, &m); err != nil {
		report.AddError(CodeInvalidType, fmt.Sprintf("%s must be a JSON object", path), path)
		return nil
	}
	report.AddPass(path + " is an object")
	return m
}

func decodeExports(report *captypes.ValidationReport, block json.RawMessage) map[string]any {
	if len(block) == 0 || string(block) == "null" {
		report.AddError(CodeNoExports, "module_exports declaration is missing", "module_exports")
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(block, &m); err != nil {
		report.AddError(CodeNoExports, "module_exports must be a JSON object", "module_exports")
		return nil
	}
	report.AddPass("module_exports is an object")
	return m
}

func validateInfo(res *Result, info map[string]any) {
	report := res.Report
	if info == nil {
		return
	}

	for _, field := range requiredInfoFields {
		path := "module_info." + field
		v, ok := info[field]
		if !ok || v == nil {
			report.AddError(CodeMissingField, fmt.Sprintf("%s is required", field), path)
			continue
		}
		s, ok := v.(string)
		if !ok {
			report.AddError(CodeInvalidType, fmt.Sprintf("%s must be a string", field), path)
			continue
		}
		if s == "" {
			report.AddError(CodeMissingField, fmt.Sprintf("%s must not be empty", field), path)
			continue
		}
		report.AddPass(field + " present")
	}

	if v, ok := info["version"].(string); ok && v != "" {
		if _, err := semver.NewVersion(v); err != nil {
			report.AddWarning(CodeInvalidVersion, fmt.Sprintf("version %q is not a semantic version", v), "module_info.version")
		} else {
			report.AddPass("version is semantic")
		}
	}

	if p, ok := info["platform"].(string); ok && p != "" {
		if !captypes.KnownPlatform(p) {
			report.AddWarning(CodeUnknownPlatform, fmt.Sprintf("platform %q is not one of any, linux, windows, macos", p), "module_info.platform")
		} else {
			report.AddPass("platform recognized")
		}
	}

	if c, ok := info["runtime_requires"].(string); ok && c != "" {
		if _, err := semver.NewConstraint(c); err != nil {
			report.AddWarning(CodeInvalidRuntime, fmt.Sprintf("runtime_requires %q is not a version constraint", c), "module_info.runtime_requires")
		} else {
			report.AddPass("runtime constraint parses")
		}
	}

	validateDependencies(res, info)
	validateEnvVars(res, info)

	// Typed decode regardless of findings; mapstructure fills what it
	// can and the zero values stand in for the rest.
	decoded := captypes.ModuleInfo{}
	if err := mapstructure.Decode(info, &decoded); err == nil {
		res.Info = &decoded
	} else {
		res.Info = &captypes.ModuleInfo{
			Dependencies:         res.Dependencies,
			EnvironmentVariables: res.EnvVars,
		}
		if name, ok := info["name"].(string); ok {
			res.Info.Name = name
		}
	}
}

func validateDependencies(res *Result, info map[string]any) {
	report := res.Report
	v, ok := info["dependencies"]
	if !ok || v == nil {
		report.AddError(CodeMissingField, "dependencies is required (use an empty list for none)", "module_info.dependencies")
		return
	}
	list, ok := v.([]any)
	if !ok {
		report.AddError(CodeInvalidType, "dependencies must be a list of specifier strings", "module_info.dependencies")
		return
	}
	clean := true
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			clean = false
			report.AddError(CodeInvalidType, "dependency specifiers must be strings", fmt.Sprintf("module_info.dependencies[%d]", i))
			continue
		}
		res.Dependencies = append(res.Dependencies, s)
	}
	if clean {
		report.AddPass("dependencies well-formed")
	}
}

func validateEnvVars(res *Result, info map[string]any) {
	report := res.Report
	v, ok := info["environment_variables"]
	if !ok || v == nil {
		report.AddError(CodeMissingField, "environment_variables is required (use an empty object for none)", "module_info.environment_variables")
		return
	}
	envMap, ok := v.(map[string]any)
	if !ok {
		report.AddError(CodeInvalidType, "environment_variables must be an object keyed by variable name", "module_info.environment_variables")
		return
	}

	names := sortedKeys(envMap)
	for _, name := range names {
		path := "module_info.environment_variables." + name
		entry, ok := envMap[name].(map[string]any)
		if !ok {
			report.AddError(CodeInvalidEnvVar, fmt.Sprintf("environment variable %s must be an object", name), path)
			continue
		}
		complete := true
		for _, sub := range []string{"description", "default", "required"} {
			if _, ok := entry[sub]; !ok {
				complete = false
				report.AddError(CodeInvalidEnvVar, fmt.Sprintf("environment variable %s is missing %s", name, sub), path+"."+sub)
			}
		}
		if v, ok := entry["required"]; ok {
			if _, isBool := v.(bool); !isBool {
				complete = false
				report.AddError(CodeInvalidEnvVar, fmt.Sprintf("environment variable %s required must be a boolean", name), path+".required")
			}
		}
		if complete {
			report.AddPass("environment variable " + name + " well-formed")
		}

		var schema captypes.EnvVarSchema
		if err := mapstructure.Decode(entry, &schema); err == nil {
			res.EnvVars[name] = schema
		}
	}
}

func validateExports(res *Result, exports map[string]any) {
	report := res.Report
	if exports == nil {
		return
	}

	if v, ok := exports["init_function"]; ok {
		if s, isString := v.(string); isString && s != "" {
			res.InitFunction = s
		} else {
			report.AddError(CodeInvalidInit, "init_function must be a non-empty symbol name", "module_exports.init_function")
		}
	}

	categories := make([]string, 0, len(exports))
	for k := range exports {
		if k == "init_function" {
			continue
		}
		categories = append(categories, k)
	}
	sort.Strings(categories)

	declared := 0
	badCategories := 0
	for _, cat := range categories {
		path := "module_exports." + cat
		if !captypes.StandardCategory(cat) {
			report.AddWarning(CodeNonstandardCat, fmt.Sprintf("category %q is not a standard category", cat), path)
		}
		list, ok := exports[cat].([]any)
		if !ok {
			badCategories++
			report.AddError(CodeInvalidType, fmt.Sprintf("category %s must be a list of symbol declarations", cat), path)
			continue
		}
		for i, item := range list {
			declared++
			validateSymbol(res, cat, i, item)
		}
	}

	if declared == 0 && badCategories == 0 {
		report.AddWarning(CodeEmptyExports, "module_exports declares no symbols; nothing will register", "module_exports")
	}
}

func validateSymbol(res *Result, category string, index int, item any) {
	report := res.Report
	path := fmt.Sprintf("module_exports.%s[%d]", category, index)

	obj, ok := item.(map[string]any)
	if !ok {
		report.AddError(CodeInvalidType, "symbol declarations must be objects", path)
		return
	}

	name, _ := obj["name"].(string)
	if name == "" {
		report.AddError(CodeMissingName, "symbol declaration has no name", path+".name")
		return
	}
	path = fmt.Sprintf("module_exports.%s.%s", category, name)

	if desc, _ := obj["description"].(string); desc == "" {
		report.AddError(CodeMissingDoc, fmt.Sprintf("symbol %s has no description", name), path+".description")
	} else {
		report.AddPass(fmt.Sprintf("symbol %s documented", name))
	}

	if params, ok := obj["parameters"]; ok {
		list, isList := params.([]any)
		if !isList {
			report.AddError(CodeInvalidParam, fmt.Sprintf("symbol %s parameters must be a list", name), path+".parameters")
		} else {
			for i, p := range list {
				pm, isMap := p.(map[string]any)
				if !isMap {
					report.AddError(CodeInvalidParam, fmt.Sprintf("symbol %s parameter %d must be an object", name, i), fmt.Sprintf("%s.parameters[%d]", path, i))
					continue
				}
				pname, _ := pm["name"].(string)
				if pname == "" {
					report.AddError(CodeInvalidParam, fmt.Sprintf("symbol %s parameter %d has no name", name, i), fmt.Sprintf("%s.parameters[%d].name", path, i))
					continue
				}
				if pdesc, _ := pm["description"].(string); pdesc == "" {
					report.AddWarning(CodeMissingParamDoc, fmt.Sprintf("symbol %s parameter %s has no description", name, pname), fmt.Sprintf("%s.parameters.%s", path, pname))
				}
			}
		}
	}

	if ret, _ := obj["returns"].(string); ret == "" {
		report.AddWarning(CodeMissingReturns, fmt.Sprintf("symbol %s declares no return type", name), path+".returns")
	}

	if rawSchema, ok := obj["input_schema"]; ok {
		if _, isMap := rawSchema.(map[string]any); !isMap {
			report.AddError(CodeInvalidSchema, fmt.Sprintf("symbol %s input_schema must be an object", name), path+".input_schema")
		} else if err := compileSchema(rawSchema); err != nil {
			report.AddError(CodeInvalidSchema, fmt.Sprintf("symbol %s input_schema does not compile: %v", name, err), path+".input_schema")
		}
	}

	var decl captypes.SymbolDecl
	if err := mapstructure.Decode(obj, &decl); err != nil {
		return
	}
	res.Exports[category] = append(res.Exports[category], decl)
}

// compileSchema checks that a declared input schema is a usable JSON
// Schema document. Compilation happens in-memory; remote references are
// not resolved and simply fail the check.
func compileSchema(schema any) error {
	doc, err := json.Marshal(schema)
	if err != nil {
		return err
	}
	_, err = schemavalidate.CompileString("input_schema.json", string(doc))
	return err
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
