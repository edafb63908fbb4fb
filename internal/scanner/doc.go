// Package scanner inventories a case tree breadth-first.
//
// Every entry at depth 0 is produced before any entry at depth 1, so callers
// streaming levels through ScanLevels can persist and display the top of a
// large tree long before the deepest directories are listed. Unreadable
// roots yield no records; unreadable subdirectories are skipped with a
// warning. Symbolic links are recorded but never followed.
//
// Files whose base name is on the favorites list are flagged and collected
// into a FavoriteIndex that keeps the newest copy of each name.
package scanner
