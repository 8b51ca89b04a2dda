// Package toolkit provides the arithmetic and formatting tools used by the
// stock math and report teams.
package toolkit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ShayCichocki/rise/internal/team"
)

// Tool names.
const (
	CalculateSum       = "calculate_sum"
	CalculateMultiply  = "calculate_multiply"
	CalculateAverage   = "calculate_average"
	CalculatePower     = "calculate_power"
	FormatAsReport     = "format_as_report"
	FormatAsBulletList = "format_as_bullet_list"
)

// ErrNoNumbers is returned by the arithmetic tools when the input holds no numbers.
var ErrNoNumbers = errors.New("no numbers in input")

var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?(?:[eE][-+]?\d+)?`)

const reportRule = "================================================================================"

// MathTools returns the arithmetic tools in a stable order.
func MathTools() []team.Tool {
	return []team.Tool{
		team.NewTool(CalculateSum, "Add numbers, e.g. \"10, 20, 30\".", sum),
		team.NewTool(CalculateMultiply, "Multiply numbers together, e.g. \"2, 3, 4\".", multiply),
		team.NewTool(CalculateAverage, "Average (mean) of numbers, e.g. \"10, 20, 30\".", average),
		team.NewTool(CalculatePower, "Raise a base to an exponent, given as \"base, exponent\".", power),
	}
}

// ReportTools returns the formatting tools in a stable order.
func ReportTools() []team.Tool {
	return []team.Tool{
		team.NewTool(FormatAsReport, "Format content as a report. Input: \"title|content\".", report),
		team.NewTool(FormatAsBulletList, "Format comma-separated items as a bullet list.", bulletList),
	}
}

// ParseNumbers extracts every number in s, in order. Words around the
// numbers are ignored, so "sum of 10, 20 and 30" yields 10, 20, 30.
func ParseNumbers(s string) ([]float64, error) {
	matches := numberPattern.FindAllString(s, -1)
	if len(matches) == 0 {
		return nil, ErrNoNumbers
	}
	nums := make([]float64, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", m, err)
		}
		nums = append(nums, n)
	}
	return nums, nil
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func joinNumbers(nums []float64) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = formatNumber(n)
	}
	return strings.Join(parts, ", ")
}

func sum(_ context.Context, input string) (string, error) {
	nums, err := ParseNumbers(input)
	if err != nil {
		return "", err
	}
	var total float64
	for _, n := range nums {
		total += n
	}
	return fmt.Sprintf("The sum of %s is %s", joinNumbers(nums), formatNumber(total)), nil
}

func multiply(_ context.Context, input string) (string, error) {
	nums, err := ParseNumbers(input)
	if err != nil {
		return "", err
	}
	product := 1.0
	for _, n := range nums {
		product *= n
	}
	return fmt.Sprintf("The product of %s is %s", joinNumbers(nums), formatNumber(product)), nil
}

func average(_ context.Context, input string) (string, error) {
	nums, err := ParseNumbers(input)
	if err != nil {
		return "", err
	}
	var total float64
	for _, n := range nums {
		total += n
	}
	avg := total / float64(len(nums))
	return fmt.Sprintf("The average of %s is %s", joinNumbers(nums), formatNumber(avg)), nil
}

func power(_ context.Context, input string) (string, error) {
	nums, err := ParseNumbers(input)
	if err != nil {
		return "", err
	}
	if len(nums) != 2 {
		return "", fmt.Errorf("need exactly two numbers (base, exponent), got %d", len(nums))
	}
	result := math.Pow(nums[0], nums[1])
	if math.IsInf(result, 0) || math.IsNaN(result) {
		return "", fmt.Errorf("%s to the power of %s is not a finite number",
			formatNumber(nums[0]), formatNumber(nums[1]))
	}
	return fmt.Sprintf("%s raised to the power of %s is %s",
		formatNumber(nums[0]), formatNumber(nums[1]), formatNumber(result)), nil
}

// report formats "title|content". Without a pipe the whole input is the
// content under a generic title.
func report(_ context.Context, input string) (string, error) {
	title, content, ok := strings.Cut(input, "|")
	if !ok {
		title, content = "Report", input
	}
	title, content = strings.TrimSpace(title), strings.TrimSpace(content)
	if content == "" {
		return "", errors.New("report content is empty")
	}
	if title == "" {
		title = "Report"
	}

	var b strings.Builder
	b.WriteString(reportRule + "\n")
	b.WriteString(strings.ToUpper(title) + "\n")
	b.WriteString(reportRule + "\n\n")
	b.WriteString(content + "\n\n")
	b.WriteString(reportRule)
	return b.String(), nil
}

func bulletList(_ context.Context, input string) (string, error) {
	var items []string
	for _, item := range strings.Split(input, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return "", errors.New("no items provided")
	}

	var b strings.Builder
	b.WriteString("FORMATTED LIST:")
	for _, item := range items {
		b.WriteString("\n  • " + item)
	}
	return b.String(), nil
}
