// Package process supervises build tool processes.
//
//	supervisor := process.NewSupervisor()
//	defer supervisor.Shutdown(5 * time.Second)
//
//	cmd := exec.Command("./gradlew", "build")
//	cmd.Stdout = stdout
//	proc, err := supervisor.Start("build", cmd)
//	if err != nil {
//	    return err
//	}
//	exit, err := proc.Wait(ctx)
//
// Build tools fork daemons, workers and test JVMs. On unix each supervised
// process leads its own process group and Interrupt, Terminate and Kill
// signal the whole group. Elsewhere all three kill the process.
package process
