// Package catalog resolves content identifiers to display names.
//
// Official holds a local JSON mirror of the vendor catalog, refreshed over
// HTTP under a file lock. ThirdParty is a SQLite store of titles,
// descriptions and thumbnails carried by portable archives of user-made
// content. Service combines both behind NameFor and always tolerates an
// unknown identifier.
package catalog
