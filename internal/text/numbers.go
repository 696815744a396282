package text

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	commaNumberRe = regexp.MustCompile(`[0-9][0-9,]+[0-9]`)
	dollarsRe     = regexp.MustCompile(`\$([0-9.,]*[0-9]+)`)
	decimalRe     = regexp.MustCompile(`([0-9]+)\.([0-9]+)`)
	ordinalRe     = regexp.MustCompile(`[0-9]+(st|nd|rd|th)`)
	numberRe      = regexp.MustCompile(`[0-9]+`)
)

// expandNumbers spells out digits, currency amounts and ordinals.
func expandNumbers(s string) string {
	s = commaNumberRe.ReplaceAllStringFunc(s, func(m string) string {
		return strings.ReplaceAll(m, ",", "")
	})
	s = dollarsRe.ReplaceAllStringFunc(s, func(m string) string {
		return expandDollars(dollarsRe.FindStringSubmatch(m)[1])
	})
	s = decimalRe.ReplaceAllString(s, "$1 point $2")
	s = ordinalRe.ReplaceAllStringFunc(s, expandOrdinal)
	s = numberRe.ReplaceAllStringFunc(s, expandNumber)

	return s
}

func expandDollars(amount string) string {
	parts := strings.Split(amount, ".")
	if len(parts) > 2 {
		return amount + " dollars"
	}

	dollars, _ := strconv.Atoi(parts[0])
	cents := 0
	if len(parts) > 1 && parts[1] != "" {
		cents, _ = strconv.Atoi(parts[1])
	}

	unit := func(n int, one, many string) string {
		if n == 1 {
			return one
		}
		return many
	}

	switch {
	case dollars > 0 && cents > 0:
		return strconv.Itoa(dollars) + " " + unit(dollars, "dollar", "dollars") + ", " +
			strconv.Itoa(cents) + " " + unit(cents, "cent", "cents")
	case dollars > 0:
		return strconv.Itoa(dollars) + " " + unit(dollars, "dollar", "dollars")
	case cents > 0:
		return strconv.Itoa(cents) + " " + unit(cents, "cent", "cents")
	default:
		return "zero dollars"
	}
}

func expandOrdinal(m string) string {
	n, err := strconv.ParseInt(m[:len(m)-2], 10, 64)
	if err != nil {
		return m
	}

	return ordinal(cardinal(n))
}

// expandNumber reads years between 1000 and 3000 the way they are spoken.
func expandNumber(m string) string {
	n, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return spellDigits(m)
	}

	if n <= 1000 || n >= 3000 {
		return cardinal(n)
	}

	switch {
	case n == 2000:
		return "two thousand"
	case n > 2000 && n < 2010:
		return "two thousand " + cardinal(n%100)
	case n%100 == 0:
		return cardinal(n/100) + " hundred"
	}

	hi, lo := n/100, n%100
	if lo < 10 {
		return cardinal(hi) + " oh " + cardinal(lo)
	}

	return cardinal(hi) + " " + cardinal(lo)
}

var (
	ones = []string{
		"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine",
		"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen",
		"seventeen", "eighteen", "nineteen",
	}
	tens   = []string{"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety"}
	scales = []string{"", "thousand", "million", "billion", "trillion", "quadrillion", "quintillion"}
)

// cardinal spells n in words with comma-separated thousands groups, e.g.
// "one thousand, two hundred thirty-four".
func cardinal(n int64) string {
	if n < 0 {
		return "minus " + cardinal(-n)
	}
	if n < 1000 {
		return underThousand(int(n))
	}

	var groups []string
	for scale := 0; n > 0; scale++ {
		g := int(n % 1000)
		n /= 1000
		if g == 0 {
			continue
		}

		w := underThousand(g)
		if scales[scale] != "" {
			w += " " + scales[scale]
		}
		groups = append([]string{w}, groups...)
	}

	return strings.Join(groups, ", ")
}

func underThousand(n int) string {
	switch {
	case n < 20:
		return ones[n]
	case n < 100:
		if n%10 == 0 {
			return tens[n/10]
		}
		return tens[n/10] + "-" + ones[n%10]
	default:
		w := ones[n/100] + " hundred"
		if n%100 != 0 {
			w += " " + underThousand(n%100)
		}
		return w
	}
}

var irregularOrdinals = map[string]string{
	"one":    "first",
	"two":    "second",
	"three":  "third",
	"five":   "fifth",
	"eight":  "eighth",
	"nine":   "ninth",
	"twelve": "twelfth",
}

// ordinal rewrites the last word of a cardinal spelling.
func ordinal(words string) string {
	cut := strings.LastIndexAny(words, " -") + 1
	head, last := words[:cut], words[cut:]

	if o, ok := irregularOrdinals[last]; ok {
		return head + o
	}
	if strings.HasSuffix(last, "y") {
		return head + strings.TrimSuffix(last, "y") + "ieth"
	}

	return head + last + "th"
}

func spellDigits(digits string) string {
	words := make([]string, 0, len(digits))
	for _, d := range digits {
		words = append(words, ones[d-'0'])
	}

	return strings.Join(words, " ")
}
