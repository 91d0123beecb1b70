// Command storypack manages the content installed on Lunii and Flam
// storytellers: listing, importing, exporting and removing story packs.
package main
