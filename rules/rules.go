//go:build ruleguard

// Package gorules contains custom linting rules for golangci-lint via ruleguard.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// UncategorizedError detects enhanced errors built without a category.
// An uncategorized error maps to InternalError and hides the cause from
// clients.
//
//	errors.New(err).Build()                                  // flagged
//	errors.New(err).Category(errors.CategoryImageDecode).Build()
func UncategorizedError(m dsl.Matcher) {
	m.Import("github.com/tphakala/leafnet-go/internal/errors")

	m.Match(`errors.New($e).Build()`, `errors.Newf($*_).Build()`).
		Report("set a Category (or use a kind builder such as errors.DecodeError) before Build()")

	m.Match(`errors.New($e).Component($_).Build()`, `errors.Newf($*_).Component($_).Build()`).
		Report("set a Category (or use a kind builder such as errors.DecodeError) before Build()")
}

// PrintInsteadOfLogger detects direct printing from library packages, which
// bypasses module levels and the JSON file output.
func PrintInsteadOfLogger(m dsl.Matcher) {
	m.Match(
		`log.Printf($*_)`, `log.Println($*_)`, `log.Print($*_)`,
		`fmt.Printf($*_)`, `fmt.Println($*_)`, `fmt.Print($*_)`,
	).
		Where(m.File().PkgPath.Matches(`/internal/`) && !m.File().Name.Matches(`_test\.go$`)).
		Report("use the package logger (GetLogger()) instead of printing")
}

// WaitGroupGo detects the Add/Done goroutine pattern replaced by wg.Go().
//
//	wg.Add(1)
//	go func() {
//	    defer wg.Done()
//	    work()
//	}()
//
// becomes
//
//	wg.Go(work)
func WaitGroupGo(m dsl.Matcher) {
	m.Match(`go func() { defer $wg.Done(); $*_ }()`).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("use $wg.Go(func() { ... }) instead of go func() { defer $wg.Done(); ... }()").
		Suggest("$wg.Go(func() { $*_ })")

	m.Match(`$wg.Add(1)`).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("use $wg.Go() which calls Add(1) itself")
}

// TestingContext detects context.Background() or context.TODO() in tests;
// t.Context() is cancelled when the test ends.
func TestingContext(m dsl.Matcher) {
	m.Match(`context.Background()`, `context.TODO()`).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("use t.Context() in tests")
}

// TimeSince detects elapsed time computed by hand.
func TimeSince(m dsl.Matcher) {
	m.Match(`time.Now().Sub($t)`).
		Report("use time.Since($t)").
		Suggest("time.Since($t)")
}

// TestifyHelpers detects assertions that have a more specific helper with a
// better failure message.
func TestifyHelpers(m dsl.Matcher) {
	m.Match(`$pkg.Equal($t, len($x), $n)`).
		Where(m["pkg"].Text.Matches(`^(assert|require)$`)).
		Report("use $pkg.Len($t, $x, $n)").
		Suggest("$pkg.Len($t, $x, $n)")

	m.Match(`$pkg.Equal($t, nil, $x)`, `$pkg.Equal($t, $x, nil)`).
		Where(m["pkg"].Text.Matches(`^(assert|require)$`)).
		Report("use $pkg.Nil($t, $x)").
		Suggest("$pkg.Nil($t, $x)")

	m.Match(`$pkg.True($t, errors.Is($err, $target))`).
		Where(m["pkg"].Text.Matches(`^(assert|require)$`)).
		Report("use $pkg.ErrorIs($t, $err, $target)").
		Suggest("$pkg.ErrorIs($t, $err, $target)")
}
