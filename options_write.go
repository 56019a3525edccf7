package atomtree

// SaveOption configures behavior when saving a document to a new path.
//
// Example:
//
//	err := doc.SaveAs(ctx, "out.m4b",
//	    atomtree.WithBackup(".bak"),
//	    atomtree.WithValidation(),
//	)
type SaveOption func(*saveOptions)

// saveOptions holds configuration for saving files.
type saveOptions struct {
	backupSuffix    string // Suffix for backup file (e.g., ".bak")
	validate        bool   // Re-read after write to verify
	preserveModTime bool   // Keep original modification time
}

// defaultSaveOptions returns the default configuration for saving.
func defaultSaveOptions() *saveOptions {
	return &saveOptions{}
}

// WithBackup renames an existing file at the output path before it is
// replaced. WithBackup(".bak") keeps "book.m4b.bak" next to the new
// "book.m4b". An existing backup is overwritten.
func WithBackup(suffix string) SaveOption {
	return func(o *saveOptions) {
		o.backupSuffix = suffix
	}
}

// WithValidation re-opens the written file and compares the BLAKE3 digest
// of its re-rendered tree with the digest of the tree that was written.
//
// Use this for critical operations where data integrity is paramount.
func WithValidation() SaveOption {
	return func(o *saveOptions) {
		o.validate = true
	}
}

// WithPreserveModTime gives the output the modification time of the
// document's source file.
func WithPreserveModTime() SaveOption {
	return func(o *saveOptions) {
		o.preserveModTime = true
	}
}
