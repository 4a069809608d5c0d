/*
Package builder turns a synced task repository into an ordered list of tasks
for one audience.

The repository layout is the configuration. Directory names of the form
`<key>-<value>` are directives that apply to everything below them:

	context-system | context-user     sets the task audience (deepest wins)
	type-oneshot   | type-onboot      sets the task type
	reboot-enabled | reboot-disabled  sets whether a reboot follows success
	group-<name>                      adds <name> to the group filter
	user-<name>                       adds <name> to the user filter
	depends-<name>                    adds <name> to the dependencies

Any other directory name only adds structure. A file with a configured script
extension becomes a task named after the file without that extension, as long
as its audience matches the requested one, it has a type, and (for user tasks
with a group filter) the caller's group membership is known and overlaps the
filter. The user filter is recorded on the task but never used to skip it.

Build walks the tree depth-first with an explicit stack, entries in lexical
order, then hands the tasks to dag.Order. A dependency cycle fails the whole
build.
*/
package builder
