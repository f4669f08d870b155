// Package cli implements the veloxd command tree.
package cli
