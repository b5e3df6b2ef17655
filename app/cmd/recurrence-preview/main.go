package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"buddy/app/core/recurrence"
)

func main() {
	rule := flag.String("rule", "", "recurrence rule, e.g. weekly:1, monthly:15, monthly:first:5, monthly:last:0")
	from := flag.String("from", "", "start date as YYYY-MM-DD (defaults to today)")
	count := flag.Int("count", 5, "number of occurrences to print")
	flag.Parse()

	if *rule == "" {
		fmt.Fprintln(os.Stderr, "usage: recurrence-preview -rule <rule> [-from YYYY-MM-DD] [-count N]")
		os.Exit(2)
	}

	start := time.Now()
	if *from != "" {
		parsed, err := time.ParseInLocation("2006-01-02", *from, time.Local)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -from date %q: %v\n", *from, err)
			os.Exit(2)
		}
		start = parsed
	}

	fmt.Printf("%s (%s)\n", *rule, recurrence.Describe(*rule))
	next := recurrence.FirstDueDate(*rule, start)
	for i := 0; i < *count; i++ {
		fmt.Printf("  %d. %s\n", i+1, next.Format("Mon 2006-01-02"))
		next = recurrence.NextDueDate(*rule, next)
	}
}
