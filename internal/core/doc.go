// Package core provides the indicator table pipeline.
//
// This package is the heart of the dashboard. It turns the untyped grid read
// from a spreadsheet into the long-form table every chart and export works
// from, and it reports every data-quality problem it finds along the way. It
// has no HTTP, storage or file-format dependencies and can be used by web
// handlers, CLI tools, or tests without modification.
//
// # Pipeline
//
// A [RawTable] is produced by a loader (see package source) and handed to a
// [Normalizer]:
//
//	n := core.NewNormalizer(core.CentralSchema())
//	table, report, err := n.Normalize(raw)
//
// Normalize runs these steps in order:
//
//  1. Empty check: a table without data rows fails with [EmptyTableError].
//  2. Schema check: the identifier columns must be present by exact name,
//     otherwise [SchemaError] lists every missing column.
//  3. Duplicate detection: repeated indicator names are reported as
//     [DuplicateIndicatorWarning]. Rows are never merged.
//  4. Year columns: every other column label is reduced to its digits
//     ("2021年" becomes 2021). Labels without digits are skipped.
//  5. Reshape: one long row per (source row, year column).
//  6. Coercion: blank cells are dropped silently, unparseable cells are
//     reported as [NumericCoercionWarning] with indicator, year and the raw
//     cell, then dropped.
//  7. Labels: value rounded to two decimals followed by the unit.
//
// Only steps 1 and 2 return an error. Everything else ends up in the
// [ValidationReport] next to an otherwise usable [Table].
//
// # Caching
//
// Normalize is a pure function of its input. [CachedNormalizer] memoizes
// results keyed by the [Fingerprint] of the raw table, so re-reading an
// unchanged file never repeats the work.
//
// # Error Handling
//
// Errors are mapped to user-friendly messages using [MapError]. Each error
// category has a unique code for support reference:
//
//   - FILE001-FILE006: Source file errors (unreadable, empty, too large)
//   - VAL001-VAL004: Validation errors (missing columns, bad values)
//   - AUTH001-AUTH002: Access errors
//   - UPL001-UPL004: Request errors (busy, cancelled, timeout)
//   - DB001-DB002: Audit database errors
//   - RATE001: Rate limiting
package core
