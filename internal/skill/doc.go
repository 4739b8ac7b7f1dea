// Package skill parses and validates skill bundles. A bundle is a directory
// whose SKILL.md carries YAML frontmatter (name, version, entrypoint and the
// declared input/output contract) followed by markdown documentation. The
// package also resolves caller payloads against the declared inputs and
// discovers bundles under a skills folder.
package skill
